package wazero

import (
	"context"
	"testing"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	bridgeerrors "github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/hostfuncs"
	"github.com/reglet-dev/valbridge/internal/abi"
	"github.com/reglet-dev/valbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type AdapterSuite struct {
	suite.Suite
	ctx     context.Context
	runtime wazero.Runtime
	bridge  *hostfuncs.Bridge
	host    api.Module
	guest   api.Module
}

func (s *AdapterSuite) SetupTest() {
	s.ctx = context.Background()
	s.runtime = wazero.NewRuntime(s.ctx)

	bridge, err := hostfuncs.NewBridge(goja.New())
	s.Require().NoError(err)
	s.bridge = bridge

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithBundle(hostfuncs.AllBundles(bridge)),
	)
	s.Require().NoError(err)

	s.host, err = RegisterWithRuntime(s.ctx, s.runtime, registry)
	s.Require().NoError(err)

	s.guest, err = s.runtime.Instantiate(s.ctx, testutil.GuestModule())
	s.Require().NoError(err)

	mem, err := GuestMemory(s.guest)
	s.Require().NoError(err)
	s.Require().NoError(bridge.Bind(hostfuncs.Binding{
		Memory: mem,
		Table:  NewFunctionTable(s.guest, 0),
		Heap:   abi.NewHeap(mem, abi.WithBase(2048)),
	}))
}

func (s *AdapterSuite) TearDownTest() {
	s.Require().NoError(s.runtime.Close(s.ctx))
}

func (s *AdapterSuite) call(fn string, params ...uint64) ([]uint64, error) {
	f := s.guest.ExportedFunction(fn)
	s.Require().NotNil(f, "guest export %s", fn)
	return f.Call(s.ctx, params...)
}

func (s *AdapterSuite) TestHostModuleExportsEntries() {
	s.Equal(DefaultModuleName, s.host.Name())

	defs := s.host.ExportedFunctionDefinitions()
	s.Contains(defs, "val_make_int")
	s.Contains(defs, "emscripten_notify_memory_growth")

	makeDouble := defs["val_make_double"]
	s.Require().NotNil(makeDouble)
	s.Equal([]api.ValueType{api.ValueTypeF64}, makeDouble.ParamTypes())
	s.Equal([]api.ValueType{api.ValueTypeI32}, makeDouble.ResultTypes())
}

func (s *AdapterSuite) TestHostFunctionCalledDirectly() {
	results, err := s.host.ExportedFunction("val_make_int").Call(s.ctx, 7)
	s.Require().NoError(err)
	n, err := s.bridge.GetInt(entities.Handle(results[0]))
	s.Require().NoError(err)
	s.Equal(int32(7), n)
}

func (s *AdapterSuite) TestGuestCallsHost() {
	results, err := s.call("make", 5)
	s.Require().NoError(err)

	n, err := s.bridge.GetInt(entities.Handle(results[0]))
	s.Require().NoError(err)
	s.Equal(int32(5), n)
}

func (s *AdapterSuite) TestThrowAbortsGuestCall() {
	h := s.bridge.MakeInt(13)
	_, err := s.call("throw", uint64(h))
	s.Require().Error(err)

	var thrown *bridgeerrors.ThrownError
	s.Require().ErrorAs(err, &thrown)
	s.Equal(bridgeerrors.ThrowKindThrown, thrown.Kind)
	s.Equal("13", thrown.Message)
}

func (s *AdapterSuite) TestUnknownHandleIsFatal() {
	_, err := s.host.ExportedFunction("val_get_value_int").Call(s.ctx, 4242)
	s.Require().Error(err)
	s.True(bridgeerrors.IsFatal(err))
}

func (s *AdapterSuite) TestCallbackThroughFunctionTable() {
	before := s.bridge.Handles().Stats()

	cb, err := s.bridge.MakeCallback(0)
	s.Require().NoError(err)

	results, err := s.call("call_back", uint64(cb))
	s.Require().NoError(err)

	n, err := s.bridge.GetInt(entities.Handle(results[0]))
	s.Require().NoError(err)
	// double receives the handle of its argument array.
	s.Greater(n, int32(2*before.NextHandle))
	s.Equal(int32(0), n%2)
}

func (s *AdapterSuite) TestCallbackIntoGuestFromHost() {
	cb, err := s.bridge.MakeCallback(0)
	s.Require().NoError(err)

	ret, err := s.bridge.FuncCall(cb, s.bridge.NewArray())
	s.Require().NoError(err)
	_, err = s.bridge.GetInt(ret)
	s.Require().NoError(err)
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()
	assert.Equal(t, "env", cfg.ModuleName)
	assert.NotNil(t, cfg.Logger)

	WithModuleName("custom_module")(&cfg)
	assert.Equal(t, "custom_module", cfg.ModuleName)

	WithCustomHandler(CustomHandler{Name: "test_handler"})(&cfg)
	require.Len(t, cfg.CustomHandlers, 1)
	assert.Equal(t, "test_handler", cfg.CustomHandlers[0].Name)
}

func TestValueTypes(t *testing.T) {
	got := valueTypes([]hostfuncs.ValueType{hostfuncs.ValueTypeI32, hostfuncs.ValueTypeI64, hostfuncs.ValueTypeF64})
	assert.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF64}, got)
	assert.Empty(t, valueTypes(nil))
}

func TestRegisterWithRuntime_CustomHandler(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	registry, err := hostfuncs.NewRegistry()
	require.NoError(t, err)

	var called bool
	mod, err := RegisterWithRuntime(ctx, rt, registry,
		WithModuleName("extra"),
		WithCustomHandler(CustomHandler{
			Name:        "ping",
			Handler:     func(ctx context.Context, mod api.Module, stack []uint64) { called = true },
			ParamTypes:  []api.ValueType{},
			ResultTypes: []api.ValueType{},
		}),
	)
	require.NoError(t, err)

	_, err = mod.ExportedFunction("ping").Call(ctx)
	require.NoError(t, err)
	assert.True(t, called)
}
