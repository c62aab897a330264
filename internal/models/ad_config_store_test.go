package models

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testNetworks() []AdNetwork {
	return []AdNetwork{
		{ID: "n1", Name: "Adsterra", IsEnabled: true},
		{ID: "n2", Name: "Monetag", IsEnabled: true},
	}
}

func testScripts() []AdScript {
	return []AdScript{
		{ID: "s1", NetworkID: "n1", AdType: AdTypeBanner728x90, Script: "<div>a</div>", IsEnabled: true},
		{ID: "s2", NetworkID: "n1", AdType: AdTypePopup, Script: "<script>p()</script>", IsEnabled: true},
		{ID: "s3", NetworkID: "n2", AdType: AdTypeBanner728x90, Script: "<div>b</div>", IsEnabled: false},
	}
}

func TestInMemoryAdConfigStore_Defaults(t *testing.T) {
	store := NewInMemoryAdConfigStore()

	settings := store.GetSettings()
	if !settings.MasterEnabled {
		t.Error("expected master switch enabled by default")
	}
	if settings.PopupFrequencyCap != DefaultPopupFrequencyCap {
		t.Errorf("expected default cap %d, got %d", DefaultPopupFrequencyCap, settings.PopupFrequencyCap)
	}
	if len(store.GetAllScripts()) != 0 {
		t.Error("expected no scripts")
	}
}

func TestInMemoryAdConfigStore_ReloadAndLookup(t *testing.T) {
	store := NewTestAdConfigStore(testNetworks(), testScripts())

	if got := store.GetScript("s2"); got == nil || got.AdType != AdTypePopup {
		t.Fatalf("expected popup script s2, got %+v", got)
	}
	if store.GetScript("missing") != nil {
		t.Error("expected nil for unknown script")
	}
	if got := store.GetNetwork("n2"); got == nil || got.Name != "Monetag" {
		t.Fatalf("expected network n2, got %+v", got)
	}
	if got := store.GetScriptsByNetwork("n1"); len(got) != 2 {
		t.Errorf("expected 2 scripts for n1, got %d", len(got))
	}
}

func TestInMemoryAdConfigStore_ReturnsCopies(t *testing.T) {
	store := NewTestAdConfigStore(testNetworks(), testScripts())

	all := store.GetAllScripts()
	all[0].Script = "mutated"
	one := store.GetScript("s1")
	one.IsEnabled = false

	if got := store.GetScript("s1"); got.Script != "<div>a</div>" || !got.IsEnabled {
		t.Errorf("store state leaked through returned value: %+v", got)
	}
}

func TestInMemoryAdConfigStore_ScriptCRUD(t *testing.T) {
	store := NewTestAdConfigStore(testNetworks(), testScripts())
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.InsertScript(AdScript{ID: "s4", NetworkID: "n2", AdType: AdTypeNative, Script: "n", IsEnabled: true, CreatedAt: created}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.UpdateScript(AdScript{ID: "s4", NetworkID: "n2", AdType: AdTypeNative, Script: "n2", IsEnabled: false}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := store.GetScript("s4")
	if got.Script != "n2" || got.IsEnabled {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("update should keep created time, got %v", got.CreatedAt)
	}

	if err := store.UpdateScript(AdScript{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteScript("s4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteScript("s4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestInMemoryAdConfigStore_DeleteNetworkCascades(t *testing.T) {
	store := NewTestAdConfigStore(testNetworks(), testScripts())

	if err := store.DeleteNetwork("n1"); err != nil {
		t.Fatalf("delete network: %v", err)
	}
	if store.GetNetwork("n1") != nil {
		t.Error("network still present")
	}
	for _, s := range store.GetAllScripts() {
		if s.NetworkID == "n1" {
			t.Errorf("script %s of deleted network still present", s.ID)
		}
	}
	if err := store.UpdateNetwork(AdNetwork{ID: "n1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryAdConfigStore_SettingsFetchedFresh(t *testing.T) {
	store := NewTestAdConfigStore(testNetworks(), testScripts())
	ctx := context.Background()

	s, err := store.FetchSettings(ctx)
	if err != nil || !s.MasterEnabled {
		t.Fatalf("unexpected settings %+v err %v", s, err)
	}
	_ = store.SetSettings(AdSettings{MasterEnabled: false})
	s, _ = store.FetchSettings(ctx)
	if s.MasterEnabled {
		t.Error("expected updated settings to be visible immediately")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.FetchScripts(cancelled); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestInMemoryAdConfigStore_ConcurrentWriters(t *testing.T) {
	store := NewInMemoryAdConfigStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.InsertNetwork(AdNetwork{ID: string(rune('a' + i%26)) + string(rune('a'+i/26)), Name: "n"})
			_ = store.GetAllNetworks()
		}(i)
	}
	wg.Wait()
	if got := len(store.GetAllNetworks()); got != 50 {
		t.Errorf("expected 50 networks, got %d", got)
	}
}

func TestSortScriptsByCreated(t *testing.T) {
	t0 := time.Unix(100, 0)
	scripts := []AdScript{
		{ID: "b", CreatedAt: t0},
		{ID: "c", CreatedAt: t0.Add(-time.Second)},
		{ID: "a", CreatedAt: t0},
	}
	SortScriptsByCreated(scripts)
	if scripts[0].ID != "c" || scripts[1].ID != "a" || scripts[2].ID != "b" {
		t.Errorf("unexpected order: %s %s %s", scripts[0].ID, scripts[1].ID, scripts[2].ID)
	}
}
