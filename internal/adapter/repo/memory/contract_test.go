package memory_test

import (
	"testing"

	"github.com/verilab/verilab/internal/adapter/repo/memory"
	"github.com/verilab/verilab/internal/adapter/repo/repotest"
)

func TestMemoryRepositories_Contract(t *testing.T) {
	t.Parallel()
	repotest.Run(t, func(_ *testing.T) repotest.Repos {
		s := memory.NewStore()
		return repotest.Repos{
			Samples:     s.Samples(),
			Orders:      s.Orders(),
			Results:     s.Results(),
			Reviews:     s.Reviews(),
			Decisions:   s.Decisions(),
			Settings:    s.Settings(),
			Rules:       s.Rules(),
			LISConfigs:  s.LISConfigs(),
			Instruments: s.Instruments(),
			Queries:     s.InstrumentQueries(),
			Tenants:     s.Tenants(),
			Users:       s.Users(),
		}
	})
}
