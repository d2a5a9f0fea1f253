package rawrsync

import (
	"os"
	"testing"
	"time"

	"github.com/Keksclan/rawrsync/catalog"
)

func TestRedisBusIntegrationInvalidatesSecondClient(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	channel := "test:rawrsync:" + t.Name()

	_, srv := newProjectsBackend(t)
	a := newTestClient(t, srv.URL, WithRedisBus(addr, "", 0, channel))
	b := newTestClient(t, srv.URL, WithRedisBus(addr, "", 0, channel))

	ctx := t.Context()
	if _, err := Fetch(ctx, b, b.API().AllProjects()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// The subscriptions are established asynchronously; write until the
	// second client sees an invalidation.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if res := Run(ctx, a, a.API().CreateProject(), catalog.CreateProject{Name: "Artemis", CreatedBy: 1}); res.Err != nil {
			t.Fatalf("CreateProject: %v", res.Err)
		}
		time.Sleep(50 * time.Millisecond)
		if e, ok := b.Store().Get(catalog.AllProjectsKey()); ok && e.Stale {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("invalidation was not relayed through Redis")
		}
	}
}
