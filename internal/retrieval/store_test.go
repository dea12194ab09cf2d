package retrieval

import "testing"

func TestSessionKnobStatement(t *testing.T) {
	cases := []struct {
		name string
		cfg  PoolConfig
		want string
	}{
		{"hnsw default", PoolConfig{IndexType: IndexHNSW, HNSWEfSearch: 100}, "SET hnsw.ef_search = 100"},
		{"hnsw custom", PoolConfig{IndexType: IndexHNSW, HNSWEfSearch: 250}, "SET hnsw.ef_search = 250"},
		{"diskann", PoolConfig{IndexType: IndexDiskANN, DiskANNSearchList: 150}, "SET search_list_size = 150"},
		{"unset defaults to hnsw", PoolConfig{HNSWEfSearch: 64}, "SET hnsw.ef_search = 64"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sessionKnobStatement(tc.cfg)
			if got != tc.want {
				t.Errorf("sessionKnobStatement(%+v) = %q, want %q", tc.cfg, got, tc.want)
			}
		})
	}
}

func TestVectorLiteral(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", []float32{}, "[]"},
		{"single", []float32{0.5}, "[0.5]"},
		{"multiple", []float32{0.1, 0.2, 0.3}, "[0.1,0.2,0.3]"},
		{"negative", []float32{-1, 0, 1}, "[-1,0,1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := vectorLiteral(tc.in)
			if got != tc.want {
				t.Errorf("vectorLiteral(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://example")
	if cfg.MaxConns != 20 || cfg.MinConns != 5 {
		t.Errorf("unexpected pool sizing: %+v", cfg)
	}
	if cfg.IndexType != IndexHNSW {
		t.Errorf("expected default index type hnsw, got %q", cfg.IndexType)
	}
}
