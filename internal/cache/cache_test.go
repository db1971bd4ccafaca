package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/ohartl/knowbase/internal/storage"
)

// newClients returns one of each Client implementation plus a hook to
// advance its clock, so the contract tests run against both.
func newClients(t *testing.T) map[string]struct {
	client  Client
	advance func(time.Duration)
} {
	t.Helper()

	mem := NewMemory()
	memBase := time.Now()
	memOffset := time.Duration(0)
	var memMu sync.Mutex
	mem.now = func() time.Time {
		memMu.Lock()
		defer memMu.Unlock()
		return memBase.Add(memOffset)
	}

	db, err := storage.OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sq := NewSQLite(db.DB)
	sqBase := time.Now()
	sqOffset := time.Duration(0)
	var sqMu sync.Mutex
	sq.now = func() time.Time {
		sqMu.Lock()
		defer sqMu.Unlock()
		return sqBase.Add(sqOffset)
	}

	return map[string]struct {
		client  Client
		advance func(time.Duration)
	}{
		"memory": {mem, func(d time.Duration) {
			memMu.Lock()
			memOffset += d
			memMu.Unlock()
		}},
		"sqlite": {sq, func(d time.Duration) {
			sqMu.Lock()
			sqOffset += d
			sqMu.Unlock()
		}},
	}
}

func TestSetGetRoundtrip(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			if err := Set(c.client, "note:detail:n1", "hello", time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, ok := Get[string](c.client, "note:detail:n1")
			if !ok {
				t.Fatal("expected hit")
			}
			if got != "hello" {
				t.Errorf("got %q, want %q", got, "hello")
			}
		})
	}
}

func TestSetOverwrites(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			_ = Set(c.client, "k", "old", time.Minute)
			_ = Set(c.client, "k", "new", time.Minute)

			got, ok := Get[string](c.client, "k")
			if !ok || got != "new" {
				t.Errorf("got (%q, %v), want (new, true)", got, ok)
			}
		})
	}
}

func TestExpiryEnforcedLazily(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			if err := Set(c.client, "k", "value", 30*time.Second); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			c.advance(29 * time.Second)
			if _, ok := c.client.Get("k"); !ok {
				t.Fatal("entry expired early")
			}

			c.advance(2 * time.Second)
			if _, ok := c.client.Get("k"); ok {
				t.Fatal("expected expiry")
			}

			// The expired entry was deleted on read, so a later read
			// inside a longer clock window still misses.
			if _, ok := c.client.Get("k"); ok {
				t.Fatal("expired entry was not deleted")
			}
		})
	}
}

func TestMissOnAbsentKey(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok := c.client.Get("never-set"); ok {
				t.Error("expected miss")
			}
		})
	}
}

func TestCorruptPayloadIsMissAndDeleted(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			// Raw bytes that are not valid JSON for the target type.
			if err := c.client.Set("k", "string", []byte("{not json"), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			if _, ok := Get[string](c.client, "k"); ok {
				t.Fatal("corrupt payload should decode as a miss")
			}

			// Self-cleaning: the bad entry is gone at the byte level too.
			if _, ok := c.client.Get("k"); ok {
				t.Error("corrupt entry should have been deleted")
			}
		})
	}
}

func TestRemoveAndClear(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			_ = Set(c.client, "a", 1, time.Minute)
			_ = Set(c.client, "b", 2, time.Minute)

			if err := c.client.Remove("a"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if _, ok := c.client.Get("a"); ok {
				t.Error("removed key still present")
			}

			if err := c.client.Clear(); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, ok := c.client.Get("b"); ok {
				t.Error("cleared key still present")
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	for name, c := range newClients(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			keys := []string{"k1", "k2", "k3"}

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						key := keys[(n+j)%len(keys)]
						_ = Set(c.client, key, n*100+j, time.Minute)
						Get[int](c.client, key)
						if j%10 == 0 {
							_ = c.client.Remove(key)
						}
					}
				}(i)
			}

			wg.Wait()
		})
	}
}
