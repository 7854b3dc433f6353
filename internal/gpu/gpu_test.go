package gpu

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestPingPongInvariant(t *testing.T) {
	dev := NewDevice(0)
	p, err := NewPingPong(dev, 16, UsageStorage, "trail")
	if err != nil {
		t.Fatalf("new pingpong: %v", err)
	}

	if p.Current() == p.Inactive() {
		t.Fatal("current and inactive alias the same buffer")
	}
	if got := p.Current().Label(); got != "trail A" {
		t.Errorf("expected label 'trail A', got %q", got)
	}
	if got := p.Inactive().Label(); got != "trail B" {
		t.Errorf("expected label 'trail B', got %q", got)
	}

	for i := 0; i < 5; i++ {
		before := p.CurrentIndex()
		p.Swap()
		if p.CurrentIndex() == before {
			t.Fatalf("swap %d did not flip current index", i)
		}
		if p.Current() == p.Inactive() {
			t.Fatalf("swap %d aliased the pair", i)
		}
	}
}

func TestDeviceBudget(t *testing.T) {
	dev := NewDevice(1024) // 256 floats
	b, err := dev.NewBuffer(128, UsageStorage, "ok")
	if err != nil {
		t.Fatalf("first allocation: %v", err)
	}

	if _, err := dev.NewBuffer(256, UsageStorage, "too big"); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}

	b.Release()
	if got := dev.Allocated(); got != 0 {
		t.Errorf("expected 0 allocated after release, got %d", got)
	}
	if _, err := dev.NewBuffer(256, UsageStorage, "fits now"); err != nil {
		t.Errorf("allocation after release failed: %v", err)
	}
}

func TestDeviceLost(t *testing.T) {
	dev := NewDevice(0)
	dev.MarkLost()
	if _, err := dev.NewBuffer(4, UsageStorage, "x"); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("expected ErrDeviceLost, got %v", err)
	}
}

func TestDeviceEachCoversRange(t *testing.T) {
	dev := NewDevice(0)
	var total atomic.Int64
	dev.Each(10_000, func(start, end int) {
		total.Add(int64(end - start))
	})
	if total.Load() != 10_000 {
		t.Errorf("Each covered %d of 10000 elements", total.Load())
	}
}

func TestSurfaceLostAndRecovery(t *testing.T) {
	s, err := NewSurface(64, 32)
	if err != nil {
		t.Fatalf("new surface: %v", err)
	}

	f, err := s.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(f.Pixels) != 64*32*4 {
		t.Errorf("expected %d pixel bytes, got %d", 64*32*4, len(f.Pixels))
	}

	s.MarkLost()
	if _, err := s.Frame(); !errors.Is(err, ErrSurfaceLost) {
		t.Errorf("expected ErrSurfaceLost, got %v", err)
	}

	if err := s.Reconfigure(128, 128); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if _, err := s.Frame(); err != nil {
		t.Errorf("frame after reconfigure: %v", err)
	}
}

func TestContextAcquire(t *testing.T) {
	ctx, err := Acquire(AcquireOptions{Width: 320, Height: 200})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ctx.Ready() {
		t.Error("freshly acquired context not ready")
	}

	caps := ctx.Caps()
	if caps.MaxWorkgroupInvocations <= 0 || caps.MaxStorageBufferSize <= 0 {
		t.Errorf("implausible caps: %+v", caps)
	}

	if err := ctx.Resize(0, 10); err == nil {
		t.Error("expected resize to zero width to fail")
	}
	if ctx.Ready() {
		t.Error("context ready after failed resize")
	}
	if err := ctx.Resize(640, 480); err != nil {
		t.Fatalf("resize: %v", err)
	}
	cfg := ctx.Surface().Config()
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("config not updated: %+v", cfg)
	}
}

func TestBufferLabels(t *testing.T) {
	dev := NewDevice(0)
	b, err := dev.NewBuffer(8, UsageUniform|UsageCopyDst, "cursor uniforms")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.Label(), "cursor") {
		t.Errorf("label lost: %q", b.Label())
	}
	if b.Usage()&UsageUniform == 0 {
		t.Error("usage flags lost")
	}
}
