package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// sources layers the dotenv file, the process environment and an explicit map. Later layers win.
type sources struct {
	layers []map[string]string
}

func openSources(o loaderOptions) (sources, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return sources{}, err
	}
	s := sources{layers: []map[string]string{dotenv}}
	if o.useSystemEnv {
		s.layers = append(s.layers, processEnv())
	}
	s.layers = append(s.layers, o.envMap)
	return s, nil
}

func (s sources) lookup(key string) (string, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if value, ok := s.layers[i][key]; ok {
			return value, true
		}
	}
	return "", false
}

func (s sources) merged() map[string]string {
	out := make(map[string]string)
	for _, layer := range s.layers {
		for key, value := range layer {
			out[key] = value
		}
	}
	return out
}

func processEnv() map[string]string {
	out := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			out[key] = value
		}
	}
	return out
}

// readDotEnv parses KEY=VALUE lines. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}

// envReader reads typed values and remembers keys whose values failed to parse.
type envReader struct {
	src     sources
	invalid []string
}

func (r *envReader) raw(key string) (string, bool) {
	value, ok := r.src.lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) String(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *envReader) Lower(key, fallback string) string {
	return strings.ToLower(r.String(key, fallback))
}

func (r *envReader) Duration(key string, fallback time.Duration) time.Duration {
	return parseOr(r, key, fallback, time.ParseDuration)
}

func (r *envReader) Int(key string, fallback int) int {
	return parseOr(r, key, fallback, strconv.Atoi)
}

func (r *envReader) Float(key string, fallback float64) float64 {
	return parseOr(r, key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func (r *envReader) Bool(key string, fallback bool) bool {
	return parseOr(r, key, fallback, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

// List splits a comma separated value, dropping blanks.
func (r *envReader) List(key string) []string {
	out := []string{}
	value, ok := r.raw(key)
	if !ok {
		return out
	}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOr[T any](r *envReader, key string, fallback T, parse func(string) (T, error)) T {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := parse(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return parsed
}
