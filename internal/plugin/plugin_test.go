package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/hooks"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/tool"
)

type testPlugin struct {
	id         string
	tools      []string
	initErr    error
	closeErr   error
	initCalls  int
	closeCalls int
}

func (p *testPlugin) ID() string      { return p.id }
func (p *testPlugin) Name() string    { return "Plugin " + p.id }
func (p *testPlugin) Version() string { return "1.0" }
func (p *testPlugin) Init(_ context.Context, api API) error {
	p.initCalls++
	if p.initErr != nil {
		return p.initErr
	}
	for _, name := range p.tools {
		err := api.Tools.Register(tool.Func{
			Def: domain.ToolDefinition{Name: name},
			Fn: func(context.Context, map[string]any) (domain.ToolResult, error) {
				return domain.Succeeded(name, nil), nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
func (p *testPlugin) Close() error {
	p.closeCalls++
	return p.closeErr
}

func testRegistry(disabled ...string) (*Registry, *tool.Registry) {
	log := logging.New(nil, "silent")
	tools := tool.NewRegistry()
	return NewRegistry(tools, hooks.NewManager(log), log, disabled...), tools
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg, _ := testRegistry()
	p := &testPlugin{id: "test"}

	require.NoError(t, reg.Register(p))
	err := reg.Register(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetAndList(t *testing.T) {
	reg, _ := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a"}))
	require.NoError(t, reg.Register(&testPlugin{id: "b"}))

	assert.Equal(t, "a", reg.Get("a").ID())
	assert.Nil(t, reg.Get("nonexistent"))
	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistry_InitAll_RegistersToolsAndFreezes(t *testing.T) {
	reg, tools := testRegistry()
	p1 := &testPlugin{id: "companies", tools: []string{"search_companies", "get_company"}}
	p2 := &testPlugin{id: "system", tools: []string{"check_api_keys"}}
	require.NoError(t, reg.Register(p1))
	require.NoError(t, reg.Register(p2))

	require.NoError(t, reg.InitAll(context.Background()))
	assert.Equal(t, 1, p1.initCalls)
	assert.Equal(t, []string{"check_api_keys", "get_company", "search_companies"}, tools.Names())

	err := tools.Register(tool.Func{Def: domain.ToolDefinition{Name: "late"}})
	assert.ErrorIs(t, err, tool.ErrFrozen)
}

func TestRegistry_InitAll_SkipsDisabled(t *testing.T) {
	reg, tools := testRegistry("research")
	p := &testPlugin{id: "research", tools: []string{"web_search"}}
	require.NoError(t, reg.Register(p))

	require.NoError(t, reg.InitAll(context.Background()))
	assert.Equal(t, 0, p.initCalls)
	assert.Equal(t, 0, tools.Len())

	reg.CloseAll()
	assert.Equal(t, 0, p.closeCalls)
	assert.False(t, reg.Info()[0].Enabled)
}

func TestRegistry_InitAll_Error(t *testing.T) {
	reg, _ := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "bad", initErr: assert.AnError}))

	err := reg.InitAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRegistry_InitAll_DuplicateToolFails(t *testing.T) {
	reg, _ := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a", tools: []string{"dup"}}))
	require.NoError(t, reg.Register(&testPlugin{id: "b", tools: []string{"dup"}}))

	err := reg.InitAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init plugin b")
}

func TestRegistry_CloseAll(t *testing.T) {
	reg, _ := testRegistry()
	p1 := &testPlugin{id: "a"}
	p2 := &testPlugin{id: "b", closeErr: assert.AnError}
	require.NoError(t, reg.Register(p1))
	require.NoError(t, reg.Register(p2))

	reg.CloseAll()
	assert.Equal(t, 1, p1.closeCalls)
	assert.Equal(t, 1, p2.closeCalls)
}

func TestRegistry_Info(t *testing.T) {
	reg, _ := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "x"}))

	infos := reg.Info()
	require.Len(t, infos, 1)
	assert.Equal(t, PluginInfo{ID: "x", Name: "Plugin x", Version: "1.0", Enabled: true}, infos[0])
}
