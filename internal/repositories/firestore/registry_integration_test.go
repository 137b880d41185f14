//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pconfig "github.com/hanko-field/orderflow/internal/platform/config"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

func TestRegistryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "orderflow-test", EmulatorHost: endpoint})
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	seed := orderToDocument(domain.Order{
		BusinessID:    "biz_1",
		Status:        domain.OrderStatusPending,
		Type:          domain.OrderTypeDelivery,
		PaymentStatus: domain.PaymentStatusPending,
		Currency:      "JPY",
		Total:         6500,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if _, err := client.Collection(ordersCollection).Doc("ord_1").Set(ctx, seed); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if err := registry.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	order, err := registry.Orders().FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	order.Status = domain.OrderStatusConfirmed
	saved, err := registry.Orders().Update(ctx, order, 1)
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}

	_, err = registry.Orders().Update(ctx, order, 1)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	earning := domain.AffiliateEarning{
		ID:          "afe_1",
		OrderID:     "ord_1",
		AffiliateID: "aff_1",
		BusinessID:  "biz_1",
		Amount:      325,
		Status:      domain.EarningStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := registry.AffiliateEarnings().Create(ctx, earning); err != nil {
		t.Fatalf("create earning: %v", err)
	}
	_, err = registry.AffiliateEarnings().Create(ctx, earning)
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected duplicate earning conflict, got %v", err)
	}

	changed, err := registry.AffiliateEarnings().CancelPending(ctx, "ord_1", now.Add(time.Hour))
	if err != nil || !changed {
		t.Fatalf("expected pending earning cancelled, got %v %v", changed, err)
	}
	changed, err = registry.AffiliateEarnings().CancelPending(ctx, "ord_1", now.Add(2*time.Hour))
	if err != nil || changed {
		t.Fatalf("expected second cancel to be a no-op, got %v %v", changed, err)
	}
	changed, err = registry.AffiliateEarnings().CancelPending(ctx, "ord_missing", now)
	if err != nil || changed {
		t.Fatalf("expected missing earning to be ignored, got %v %v", changed, err)
	}

	_, err = registry.Businesses().FindSettings(ctx, "biz_missing")
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected missing settings to be not found, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
