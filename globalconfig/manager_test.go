package globalconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/types"
	"github.com/geanlabs/attester/verifier"
	"github.com/stretchr/testify/require"
)

const globalTmpl = `
startRoundId: %d
consensusSubsetSize: %d
defaultSetAssignerAddresses: ["0x00000000000000000000000000000000000000a1"]
sources:
  - sourceId: 3
    maxTotalRoundWeight: 100
    attestationTypes: [{type: 1, weight: 1}]
`

const routesTmpl = `
startRoundId: %d
sources:
  - sourceId: 3
    defaultUrl: %s
    routes:
      - attestationTypes: [1]
`

func setup(t *testing.T) (globalDir, routesDir string) {
	t.Helper()
	globalDir, routesDir = t.TempDir(), t.TempDir()
	write(t, globalDir, "g10.yaml", fmt.Sprintf(globalTmpl, 10, 3))
	write(t, globalDir, "g20.yaml", fmt.Sprintf(globalTmpl, 20, 5))
	write(t, routesDir, "r10.yaml", fmt.Sprintf(routesTmpl, 10, "http://a"))
	return globalDir, routesDir
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestManager_SelectByRound(t *testing.T) {
	g, r := setup(t)
	m, err := New(Config{GlobalDir: g, RoutesDir: r})
	require.NoError(t, err)

	_, ok := m.GlobalConfig(9)
	require.False(t, ok)

	cfg, ok := m.GlobalConfig(10)
	require.True(t, ok)
	require.Equal(t, 3, cfg.ConsensusSubsetSize)

	cfg, ok = m.GlobalConfig(19)
	require.True(t, ok)
	require.Equal(t, 3, cfg.ConsensusSubsetSize)

	cfg, ok = m.GlobalConfig(500)
	require.True(t, ok)
	require.Equal(t, 5, cfg.ConsensusSubsetSize)

	_, ok = m.VerifierRouter(9)
	require.False(t, ok)
	router, ok := m.VerifierRouter(42)
	require.True(t, ok)
	require.True(t, router.IsSupported(3, 1))

	require.Equal(t, types.RoundID(10), m.FirstRound())
}

func TestManager_ReloadReusesUnchangedRouters(t *testing.T) {
	g, r := setup(t)

	built := 0
	m, err := New(Config{
		GlobalDir: g,
		RoutesDir: r,
		NewRouter: func(v *config.VerifierRoutes) (verifier.Router, error) {
			built++
			return verifier.NewHTTPRouter(v, nil)
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, built)

	first, _ := m.VerifierRouter(10)
	require.NoError(t, m.ReloadVerifierRoutes())
	require.Equal(t, 1, built)
	again, _ := m.VerifierRouter(10)
	require.Same(t, first, again)

	write(t, r, "r30.yaml", fmt.Sprintf(routesTmpl, 30, "http://b"))
	require.NoError(t, m.ReloadVerifierRoutes())
	require.Equal(t, 2, built)

	later, _ := m.VerifierRouter(31)
	require.NotSame(t, first, later)
	same, _ := m.VerifierRouter(29)
	require.Same(t, first, same)
}

func TestManager_BadReloadKeepsRouters(t *testing.T) {
	g, r := setup(t)
	m, err := New(Config{GlobalDir: g, RoutesDir: r})
	require.NoError(t, err)

	write(t, r, "dup.yaml", fmt.Sprintf(routesTmpl, 10, "http://c"))
	require.ErrorIs(t, m.ReloadVerifierRoutes(), config.ErrDuplicateStart)

	_, ok := m.VerifierRouter(10)
	require.True(t, ok)
}

func TestManager_StartStop(t *testing.T) {
	g, r := setup(t)
	m, err := New(Config{GlobalDir: g, RoutesDir: r, ReloadSpec: "not a spec"})
	require.NoError(t, err)
	require.Error(t, m.Start())

	m, err = New(Config{GlobalDir: g, RoutesDir: r})
	require.NoError(t, err)
	require.NoError(t, m.Start())
	m.Stop()
}
