package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/servicetrack/internal/db"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	bangalore   = Fix{Point: geo.Point{Lat: 12.9716, Lng: 77.5946}, Label: "Bangalore"}
	indiranagar = Fix{Point: geo.Point{Lat: 12.9784, Lng: 77.6408}, Label: "Indiranagar"}
)

// testDB creates an in-memory SQLite database with the kv_entries table.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

// memCache is an in-memory Cache that counts saves.
type memCache struct {
	mu    sync.Mutex
	fix   Fix
	ok    bool
	saves int
}

func (c *memCache) Load() (Fix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fix, c.ok
}

func (c *memCache) Save(f Fix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fix, c.ok = f, true
	c.saves++
	return nil
}

func waitDone(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for location request")
	}
}

// --- Store tests ---

func TestStore_RequiresDB(t *testing.T) {
	if _, err := NewStore(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestStore_EmptyLoad(t *testing.T) {
	s := testStore(t)
	if _, ok := s.Load(); ok {
		t.Error("Load on empty store reported a fix")
	}
}

func TestStore_SaveLoadOverwrite(t *testing.T) {
	s := testStore(t)
	if err := s.Save(bangalore); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(indiranagar); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, ok := s.Load()
	if !ok {
		t.Fatal("Load reported no fix")
	}
	if got.Point != indiranagar.Point || got.Label != "Indiranagar" {
		t.Errorf("Load = %+v, want Indiranagar", got)
	}
	if got.Source != SourceCache {
		t.Errorf("Source = %q, want cache", got.Source)
	}

	var n int64
	s.db.Model(&models.KVEntry{}).Count(&n)
	if n != 2 {
		t.Errorf("kv rows = %d, want 2", n)
	}
}

func TestStore_StoredShape(t *testing.T) {
	s := testStore(t)
	if err := s.Save(bangalore); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var e models.KVEntry
	if err := s.db.First(&e, "`key` = ?", KeyCoords).Error; err != nil {
		t.Fatalf("read coords: %v", err)
	}
	if e.Value != `{"lat":12.9716,"lng":77.5946}` {
		t.Errorf("coords value = %s", e.Value)
	}
}

func TestStore_CorruptCoords(t *testing.T) {
	s := testStore(t)
	s.db.Create(&models.KVEntry{Key: KeyCoords, Value: "not json"})
	if _, ok := s.Load(); ok {
		t.Error("Load accepted corrupt coordinates")
	}
}

func TestStore_RejectsInvalidPoint(t *testing.T) {
	s := testStore(t)
	if err := s.Save(Fix{Point: geo.Point{Lat: 95, Lng: 0}}); err == nil {
		t.Fatal("expected error for out-of-range latitude")
	}
}

func TestStore_Clear(t *testing.T) {
	s := testStore(t)
	s.Save(bangalore)
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Load(); ok {
		t.Error("Load after Clear reported a fix")
	}
}

// --- Watcher tests ---

func TestNewWatcher_RequiresProvider(t *testing.T) {
	if _, err := NewWatcher(WatcherOpts{}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestWatcher_DefaultWithoutCache(t *testing.T) {
	w, err := NewWatcher(WatcherOpts{Provider: Unavailable{}, Default: bangalore})
	if err != nil {
		t.Fatal(err)
	}
	got := w.Current()
	if got.Point != bangalore.Point || got.Source != SourceDefault {
		t.Errorf("Current = %+v, want default Bangalore", got)
	}
}

func TestWatcher_CachedFixBeatsDefault(t *testing.T) {
	cache := &memCache{fix: Fix{Point: indiranagar.Point, Source: SourceCache}, ok: true}
	w, _ := NewWatcher(WatcherOpts{Provider: Unavailable{}, Cache: cache, Default: bangalore})
	if got := w.Current(); got.Point != indiranagar.Point || got.Source != SourceCache {
		t.Errorf("Current = %+v, want cached fix", got)
	}
}

func TestWatcher_DeviceFixOverwritesAndPersists(t *testing.T) {
	s := testStore(t)
	var got Fix
	calls := 0
	w, _ := NewWatcher(WatcherOpts{
		Provider: StaticProvider{Fix: indiranagar},
		Cache:    s,
		Default:  bangalore,
		OnFix: func(f Fix) {
			calls++
			got = f
		},
	})

	w.Start(context.Background())
	waitDone(t, w)

	if calls != 1 {
		t.Fatalf("OnFix calls = %d, want 1", calls)
	}
	if got.Source != SourceDevice || got.Point != indiranagar.Point {
		t.Errorf("OnFix fix = %+v", got)
	}
	if w.Current().Point != indiranagar.Point {
		t.Errorf("Current = %+v, want device fix", w.Current())
	}
	cached, ok := s.Load()
	if !ok || cached.Label != "Indiranagar" {
		t.Errorf("durable cache = %+v, %v", cached, ok)
	}
}

func TestWatcher_FailureKeepsPrevious(t *testing.T) {
	cache := &memCache{}
	called := false
	w, _ := NewWatcher(WatcherOpts{
		Provider: FuncProvider(func(ctx context.Context, req Request) (Fix, error) {
			return Fix{}, errors.New("permission denied")
		}),
		Cache:   cache,
		Default: bangalore,
		OnFix:   func(Fix) { called = true },
	})
	w.Start(context.Background())
	waitDone(t, w)

	if called {
		t.Error("OnFix called on failure")
	}
	if w.Current().Source != SourceDefault {
		t.Errorf("Current = %+v, want default kept", w.Current())
	}
	if cache.saves != 0 {
		t.Errorf("saves = %d, want 0", cache.saves)
	}
}

func TestWatcher_RequestLimits(t *testing.T) {
	var got Request
	w, _ := NewWatcher(WatcherOpts{
		Provider: FuncProvider(func(ctx context.Context, req Request) (Fix, error) {
			got = req
			if _, ok := ctx.Deadline(); !ok {
				t.Error("locate context has no deadline")
			}
			return indiranagar, nil
		}),
	})
	w.Start(context.Background())
	waitDone(t, w)

	if got.MaxAge != 60*time.Second || got.Timeout != 10*time.Second || !got.HighAccuracy {
		t.Errorf("request = %+v, want 60s max age, 10s timeout, high accuracy", got)
	}
}

func TestWatcher_StopDropsLateFix(t *testing.T) {
	release := make(chan struct{})
	called := false
	w, _ := NewWatcher(WatcherOpts{
		Provider: FuncProvider(func(ctx context.Context, req Request) (Fix, error) {
			<-release
			return indiranagar, nil
		}),
		Default: bangalore,
		OnFix:   func(Fix) { called = true },
	})
	w.Start(context.Background())
	w.Stop()
	close(release)
	waitDone(t, w)

	if called {
		t.Error("OnFix called after Stop")
	}
	if w.Current().Source != SourceDefault {
		t.Errorf("Current = %+v, want default", w.Current())
	}
}

func TestWatcher_StartOnce(t *testing.T) {
	n := 0
	var mu sync.Mutex
	w, _ := NewWatcher(WatcherOpts{
		Provider: FuncProvider(func(ctx context.Context, req Request) (Fix, error) {
			mu.Lock()
			n++
			mu.Unlock()
			return indiranagar, nil
		}),
	})
	w.Start(context.Background())
	w.Start(context.Background())
	waitDone(t, w)

	mu.Lock()
	defer mu.Unlock()
	if n != 1 {
		t.Errorf("Locate calls = %d, want 1", n)
	}
}

func TestStaticProvider_InvalidFix(t *testing.T) {
	_, err := StaticProvider{Fix: Fix{Point: geo.Point{Lat: 200}}}.Locate(context.Background(), Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
