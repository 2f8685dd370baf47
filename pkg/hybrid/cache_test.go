package hybrid

import (
	"context"
	"fmt"
	"testing"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

// stubOut replaces every real backend constructor so tests never touch the
// network; only tesseract succeeds, with a scripted fake.
func stubOut(c *Coordinator, tess *fakeProvider) {
	for s := range c.constructors {
		c.constructors[s] = func() (providers.Provider, error) {
			return nil, fmt.Errorf("not in this test")
		}
	}
	c.constructors[providers.StrategyTesseract] = func() (providers.Provider, error) {
		return tess, nil
	}
}

func TestCache_ReusesOnSameFingerprint(t *testing.T) {
	cache := NewCache()

	first := cache.Get(Config{PreferLocal: true})
	second := cache.Get(Config{PreferLocal: true, RemoteModel: "other"})
	if first != second {
		t.Error("Model overrides do not change the fingerprint; instance must be reused")
	}
}

func TestCache_TeardownOnFingerprintChange(t *testing.T) {
	cache := NewCache()

	first := cache.Get(Config{PreferLocal: true})
	tess := &fakeProvider{name: "tesseract", result: goodResult("tesseract")}
	stubOut(first, tess)
	first.Recognize(context.Background(), "page.png")

	second := cache.Get(Config{PreferLocal: true, Forced: providers.StrategyTesseract})
	if first == second {
		t.Fatal("Expected a fresh coordinator for a new fingerprint")
	}
	if tess.released == 0 {
		t.Error("Old coordinator must be cleaned up on replacement")
	}
}

func TestCache_Current(t *testing.T) {
	cache := NewCache()

	if coord, fp := cache.Current(); coord != nil || fp != "" {
		t.Error("Empty cache must report nil")
	}

	created := cache.Get(Config{})
	coord, fp := cache.Current()
	if coord != created {
		t.Error("Current must return the cached instance")
	}
	if fp != "preferLocal=false;forced=auto" {
		t.Errorf("Unexpected fingerprint %q", fp)
	}
}

func TestCache_Close(t *testing.T) {
	cache := NewCache()

	coord := cache.Get(Config{PreferLocal: true})
	tess := &fakeProvider{name: "tesseract", result: goodResult("tesseract")}
	stubOut(coord, tess)
	coord.Recognize(context.Background(), "page.png")

	cache.Close()
	if tess.released == 0 {
		t.Error("Close must release materialized providers")
	}
	if coord, _ := cache.Current(); coord != nil {
		t.Error("Closed cache must be empty")
	}

	cache.Close()
}
