package witness

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// VisibilityPolicy wraps a single gopher-lua VM that lets script content
// adjust, per script type, the AOI radius and hysteresis handed to it, or
// veto them. The cell server consults it once per session, for the viewer's
// own script type, before the viewer's trigger is installed; it is not
// applied to individual targets during trigger refresh. Grounded on the
// teacher's internal/scripting/engine.go single-VM, table-marshalling
// pattern, single-goroutine access only (game loop).
type VisibilityPolicy struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewVisibilityPolicy loads every .lua file in dir into one VM. A missing
// directory is not an error — the policy then falls back to the identity
// scaling (radius unchanged, never veto).
func NewVisibilityPolicy(dir string, log *zap.Logger) (*VisibilityPolicy, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	p := &VisibilityPolicy{vm: vm, log: log}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		vm.Close()
		return nil, fmt.Errorf("read aoi policy dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return p, nil
}

func (p *VisibilityPolicy) Close() { p.vm.Close() }

// Decision is what a script's aoi_policy function returned for one script type.
type Decision struct {
	Radius     float32
	Hysteresis float32
	Veto       bool
}

// Evaluate calls the global Lua function aoi_policy(script_type, radius,
// hysteresis), if defined, and returns its decision. With no such function
// loaded, it returns the inputs unchanged and never vetoes — the policy
// hook is additive, not required.
func (p *VisibilityPolicy) Evaluate(scriptType uint16, radius, hysteresis float32) Decision {
	fn := p.vm.GetGlobal("aoi_policy")
	if fn == lua.LNil {
		return Decision{Radius: radius, Hysteresis: hysteresis}
	}

	if err := p.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(scriptType), lua.LNumber(radius), lua.LNumber(hysteresis)); err != nil {
		p.log.Error("lua aoi_policy error", zap.Error(err))
		return Decision{Radius: radius, Hysteresis: hysteresis}
	}

	result := p.vm.Get(-1)
	p.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return Decision{Radius: radius, Hysteresis: hysteresis}
	}

	out := Decision{Radius: radius, Hysteresis: hysteresis}
	if v := rt.RawGetString("radius"); v != lua.LNil {
		out.Radius = float32(lua.LVAsNumber(v))
	}
	if v := rt.RawGetString("hysteresis"); v != lua.LNil {
		out.Hysteresis = float32(lua.LVAsNumber(v))
	}
	out.Veto = rt.RawGetString("veto") == lua.LTrue
	return out
}
