package wiring

import (
	"context"
	"errors"

	"github.com/zjrosen/registrar/internal/flags"
	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/registry"
)

// Report is the result of Check.
type Report struct {
	Strict      bool                   `yaml:"strict"`
	Contracts   int                    `yaml:"contracts"`
	Unsatisfied []registry.ContractRef `yaml:"-"`
	Missing     []string               `yaml:"missing,omitempty"`
	Failures    []string               `yaml:"failures,omitempty"`
}

// OK reports whether the check passed.
func (r Report) OK() bool {
	if len(r.Failures) > 0 {
		return false
	}
	return !r.Strict || len(r.Unsatisfied) == 0
}

// Check validates every contract on the registry and then builds them.
// Without strict mode a contract that has no factory of its own is reported
// but does not fail the check. The strict-contracts flag forces strict mode.
func (a *App) Check(ctx context.Context, strict bool) Report {
	if fl, err := a.Flags.Get(ctx); err == nil && fl.Enabled(flags.FlagStrictContracts) {
		strict = true
	}

	rep := Report{
		Strict:      strict,
		Contracts:   len(a.Registry.Snapshot().Contracts),
		Unsatisfied: a.Registry.UnsatisfiedContracts(),
	}
	missing := make(map[uint64]bool, len(rep.Unsatisfied))
	for _, ref := range rep.Unsatisfied {
		rep.Missing = append(rep.Missing, ref.String())
		missing[ref.ID] = true
	}

	for _, err := range splitJoined(a.Registry.TestAllContracts(ctx)) {
		// Only a contract that itself has no factory is excused. A factory
		// that fails on a missing dependency still fails the check.
		var failure *registry.ContractFailure
		if !strict && errors.As(err, &failure) && missing[failure.Ref.ID] {
			continue
		}
		rep.Failures = append(rep.Failures, err.Error())
	}

	log.Info(log.CatCLI, "contract check finished",
		"contracts", rep.Contracts, "missing", len(rep.Missing), "failures", len(rep.Failures), "strict", strict)
	return rep
}

func splitJoined(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
