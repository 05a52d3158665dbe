package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/pkg/provider/llm"
	llmmock "github.com/MrWong99/iq360/pkg/provider/llm/mock"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	s2smock "github.com/MrWong99/iq360/pkg/provider/s2s/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("missing api key")
	})
	reg.RegisterS2S("mock-live", func(config.ProviderEntry) (s2s.Provider, error) {
		return &s2smock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "m1"}); err != nil {
		t.Fatal(err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory got %+v", gotEntry)
	}
	if _, err := reg.CreateS2S(config.ProviderEntry{Name: "mock-live"}); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateS2S(config.ProviderEntry{Name: "mock"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("kinds must not share names: %v", err)
	}
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want factory error", err)
	}

	if got := reg.Names("llm"); !slices.Equal(got, []string{"broken", "mock"}) {
		t.Errorf("llm names = %v", got)
	}
	if got := reg.Names("tts"); got != nil {
		t.Errorf("unknown kind = %v", got)
	}
}
