package access

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallerygo/pkg/catalog"
	"gallerygo/pkg/config"
)

type stubOracle struct {
	enabled      bool
	enforcedFor  map[string]bool
	enforcedErr  error
	blocked      map[string]bool // keyed by base name
	inspectErr   error
	inspectCalls int
}

func (o *stubOracle) Enabled() bool { return o.enabled }

func (o *stubOracle) Enforced(ctx context.Context, viewer string) (bool, error) {
	if o.enforcedErr != nil {
		return false, o.enforcedErr
	}
	return o.enforcedFor[viewer], nil
}

func (o *stubOracle) Inspect(ctx context.Context, absPath string) (Decision, error) {
	o.inspectCalls++
	if o.inspectErr != nil {
		return DecisionUnknown, o.inspectErr
	}
	v, ok := o.blocked[filepath.Base(absPath)]
	if !ok {
		return DecisionUnknown, nil
	}
	if v {
		return DecisionBlock, nil
	}
	return DecisionAllow, nil
}

func testCfg() config.AccessConfig {
	return config.AccessConfig{
		DecisionTTL:      config.Duration(time.Hour),
		DecisionCapacity: 64,
		RequestTTL:       config.Duration(time.Minute),
		RequestCapacity:  16,
	}
}

func records(names ...string) []catalog.ImageRecord {
	out := make([]catalog.ImageRecord, len(names))
	for i, n := range names {
		out[i] = catalog.ImageRecord{Name: n, RelPath: n}
	}
	return out
}

func TestFilterDisabledOraclePassesThrough(t *testing.T) {
	f := NewFilter(NullOracle{}, testCfg())
	imgs := records("a.png", "b.png")
	got := f.Filter(context.Background(), Viewer{}, t.TempDir(), imgs)
	assert.Equal(t, imgs, got)
}

func TestFilterNilOraclePassesThrough(t *testing.T) {
	f := NewFilter(nil, testCfg())
	imgs := records("a.png")
	got := f.Filter(context.Background(), Viewer{Name: "bob"}, t.TempDir(), imgs)
	assert.Equal(t, imgs, got)
}

func TestFilterAnonymousBlocked(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true, "y.png": false}}
	f := NewFilter(o, testCfg())

	got := f.Filter(context.Background(), Viewer{}, t.TempDir(), records("x.png", "y.png"))
	require.Len(t, got, 1)
	assert.Equal(t, "y.png", got[0].RelPath)
}

func TestFilterNamedNotEnforced(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true}, enforcedFor: map[string]bool{"alice": false}}
	f := NewFilter(o, testCfg())

	imgs := records("x.png", "y.png")
	got := f.Filter(context.Background(), Viewer{Name: "alice"}, t.TempDir(), imgs)
	assert.Equal(t, imgs, got, "enforcement disabled shows everything regardless of classification")
}

func TestFilterNamedEnforced(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true}, enforcedFor: map[string]bool{"bob": true}}
	f := NewFilter(o, testCfg())

	got := f.Filter(context.Background(), Viewer{Name: "bob"}, t.TempDir(), records("x.png", "y.png"))
	require.Len(t, got, 1)
	assert.Equal(t, "y.png", got[0].RelPath)
}

func TestFilterEnforcementErrorFailsClosed(t *testing.T) {
	o := &stubOracle{enabled: true, enforcedErr: errors.New("oracle down"), blocked: map[string]bool{"x.png": true}}
	f := NewFilter(o, testCfg())

	got := f.Filter(context.Background(), Viewer{Name: "bob"}, t.TempDir(), records("x.png", "y.png"))
	require.Len(t, got, 1, "enforcement check error defaults to enforced")
	assert.Equal(t, "y.png", got[0].RelPath)
}

func TestFilterUnknownDecisionAllows(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{}}
	f := NewFilter(o, testCfg())

	got := f.Filter(context.Background(), Viewer{}, t.TempDir(), records("new.png"))
	require.Len(t, got, 1, "unclassified content is shown by default")
}

func TestFilterPerImageErrorAsymmetry(t *testing.T) {
	tests := []struct {
		name   string
		viewer Viewer
		want   int
	}{
		{"anonymous fails closed", Viewer{}, 0},
		{"named fails open", Viewer{Name: "bob"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &stubOracle{enabled: true, inspectErr: errors.New("scan failed"), enforcedFor: map[string]bool{"bob": true}}
			f := NewFilter(o, testCfg())
			got := f.Filter(context.Background(), tt.viewer, t.TempDir(), records("a.png", "b.png"))
			assert.Len(t, got, tt.want)
		})
	}
}

func TestFilterRequestCacheShortCircuits(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true}}
	f := NewFilter(o, testCfg())
	root := t.TempDir()

	imgs := records("x.png", "y.png")
	first := f.Filter(context.Background(), Viewer{}, root, imgs)
	callsAfterFirst := o.inspectCalls
	second := f.Filter(context.Background(), Viewer{}, root, imgs)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, o.inspectCalls, "cached request result answers without oracle calls")
}

func TestFilterDecisionCacheReused(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true}}
	f := NewFilter(o, testCfg())
	root := t.TempDir()

	f.Filter(context.Background(), Viewer{}, root, records("x.png"))
	calls := o.inspectCalls
	// Different candidate set, same image: request cache misses but the
	// per-image decision cache answers.
	f.Filter(context.Background(), Viewer{}, root, records("x.png", "z.png"))
	assert.Equal(t, calls+1, o.inspectCalls, "only the unseen image hits the oracle")
}

func TestFilterInvalidateRequests(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true}}
	f := NewFilter(o, testCfg())
	root := t.TempDir()

	imgs := records("x.png")
	f.Filter(context.Background(), Viewer{}, root, imgs)
	f.InvalidateRequests()
	calls := o.inspectCalls
	f.Filter(context.Background(), Viewer{}, root, imgs)
	assert.Equal(t, calls, o.inspectCalls, "decision cache still answers after request cache purge")
}

func TestAllowed(t *testing.T) {
	o := &stubOracle{enabled: true, blocked: map[string]bool{"x.png": true, "y.png": false}}
	f := NewFilter(o, testCfg())
	root := t.TempDir()

	assert.False(t, f.Allowed(context.Background(), Viewer{}, root, "x.png"))
	assert.True(t, f.Allowed(context.Background(), Viewer{}, root, "y.png"))
}

func TestAllowedTraversalAsymmetry(t *testing.T) {
	o := &stubOracle{enabled: true, enforcedFor: map[string]bool{"bob": true}}
	f := NewFilter(o, testCfg())
	root := t.TempDir()

	assert.False(t, f.Allowed(context.Background(), Viewer{}, root, "../escape.png"))
	assert.True(t, f.Allowed(context.Background(), Viewer{Name: "bob"}, root, "../escape.png"))
}

type fastStub struct {
	stubOracle
	fastCalls int
}

func (o *fastStub) InspectFast(ctx context.Context, absPath string) (Decision, error) {
	o.fastCalls++
	return DecisionAllow, nil
}

func TestFilterPrefersFastOracle(t *testing.T) {
	o := &fastStub{stubOracle: stubOracle{enabled: true}}
	f := NewFilter(o, testCfg())

	got := f.Filter(context.Background(), Viewer{}, t.TempDir(), records("a.png"))
	require.Len(t, got, 1)
	assert.Equal(t, 1, o.fastCalls)
	assert.Equal(t, 0, o.inspectCalls, "fast variant preferred over scanning")
}
