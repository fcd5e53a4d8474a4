package services

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
)

func TestSelector_NoKeys(t *testing.T) {
	r := NewKeyRegistry(nil)
	s := NewSelector(r, rand.NewPCG(1, 2))

	if _, err := s.Pick(); !errors.Is(err, ErrNoAvailableKey) {
		t.Errorf("Pick() error = %v, want ErrNoAvailableKey", err)
	}
}

func TestSelector_AllDisabled(t *testing.T) {
	r := NewKeyRegistry(nil)
	r.Add("a", "")
	r.Add("b", "")
	r.SetEnabled("a", false)
	r.SetEnabled("b", false)

	s := NewSelector(r, rand.NewPCG(1, 2))
	if _, err := s.Pick(); !errors.Is(err, ErrNoAvailableKey) {
		t.Errorf("Pick() error = %v, want ErrNoAvailableKey", err)
	}
}

func TestSelector_SingleKey(t *testing.T) {
	r := NewKeyRegistry(nil)
	r.Add("only", "")
	s := NewSelector(r, rand.NewPCG(7, 7))

	for i := 0; i < 100; i++ {
		key, err := s.Pick()
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		if key.Key != "only" {
			t.Fatalf("Pick() = %q, want only", key.Key)
		}
	}
}

func TestSelector_UniformOverEnabledKeys(t *testing.T) {
	r := NewKeyRegistry(nil)
	for i := 0; i < 5; i++ {
		r.Add(fmt.Sprintf("k%d", i), "")
	}
	r.SetEnabled("k4", false)

	s := NewSelector(r, rand.NewPCG(42, 1024))

	const draws = 40000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		key, err := s.Pick()
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		counts[key.Key]++
	}

	if counts["k4"] != 0 {
		t.Errorf("disabled key selected %d times", counts["k4"])
	}

	want := 1.0 / 4.0
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("k%d", i)
		freq := float64(counts[name]) / draws
		if math.Abs(freq-want) > 0.02 {
			t.Errorf("%s frequency = %.4f, want %.2f +/- 0.02", name, freq, want)
		}
	}
}

func TestSelector_SeededIsReproducible(t *testing.T) {
	r := NewKeyRegistry(nil)
	r.Add("a", "")
	r.Add("b", "")
	r.Add("c", "")

	s1 := NewSelector(r, rand.NewPCG(3, 9))
	s2 := NewSelector(r, rand.NewPCG(3, 9))

	for i := 0; i < 50; i++ {
		k1, _ := s1.Pick()
		k2, _ := s2.Pick()
		if k1.Key != k2.Key {
			t.Fatalf("draw %d differs: %q vs %q", i, k1.Key, k2.Key)
		}
	}
}
