package scripting

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/YashM20/voxel-builder-threejs/internal/rng"
	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

// LuaGenerator builds the initial world from a Lua script. The script must
// define generate(width, height, depth) and may call:
//
//	world.set(x, y, z, code)   -- errors when out of bounds
//	world.get(x, y, z)         -- returns the current code
//	world.random(n)            -- integer in [0, n) from the injected source
//	world.log(msg)
type LuaGenerator struct {
	name      string
	source    string
	instLimit int
	logger    *zap.Logger
}

// NewLuaGenerator creates a generator from script source.
//
// Precondition: logger must be non-nil; instLimit <= 0 uses DefaultInstructionLimit.
func NewLuaGenerator(name, source string, instLimit int, logger *zap.Logger) *LuaGenerator {
	return &LuaGenerator{name: name, source: source, instLimit: instLimit, logger: logger}
}

// LoadLuaGenerator reads a generator script from path.
//
// Postcondition: Returns a generator or an error if the file cannot be read.
func LoadLuaGenerator(path string, instLimit int, logger *zap.Logger) (*LuaGenerator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading generator %q: %w", path, err)
	}
	return NewLuaGenerator(path, string(data), instLimit, logger), nil
}

// Generate runs the script against g.
//
// Precondition: g and src must be non-nil.
// Postcondition: Returns an error if the script fails to load, lacks
// generate, raises an error, or exceeds its instruction budget.
func (l *LuaGenerator) Generate(g *world.Grid, src rng.Source) error {
	L, cancel := NewSandboxedState(l.instLimit)
	defer cancel()
	defer L.Close()

	l.registerWorld(L, g, src)

	if err := L.DoString(l.source); err != nil {
		return fmt.Errorf("scripting: loading %q: %w", l.name, err)
	}
	fn := L.GetGlobal("generate")
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("scripting: %q does not define generate()", l.name)
	}

	w, h, d := g.Dimensions()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
		lua.LNumber(w), lua.LNumber(h), lua.LNumber(d)); err != nil {
		return fmt.Errorf("scripting: running %q: %w", l.name, err)
	}
	return nil
}

func (l *LuaGenerator) registerWorld(L *lua.LState, g *world.Grid, src rng.Source) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"set": func(L *lua.LState) int {
			x, y, z, code := L.CheckInt(1), L.CheckInt(2), L.CheckInt(3), L.CheckInt(4)
			if code < world.Empty {
				L.RaiseError("world.set: block code must be >= 0, got %d", code)
			}
			if err := g.Set(x, y, z, code); err != nil {
				L.RaiseError("world.set: %v", err)
			}
			return 0
		},
		"get": func(L *lua.LState) int {
			v, err := g.Get(L.CheckInt(1), L.CheckInt(2), L.CheckInt(3))
			if err != nil {
				L.RaiseError("world.get: %v", err)
			}
			L.Push(lua.LNumber(v))
			return 1
		},
		"random": func(L *lua.LState) int {
			n := L.CheckInt(1)
			if n <= 0 {
				L.RaiseError("world.random: n must be > 0, got %d", n)
			}
			L.Push(lua.LNumber(src.Intn(n)))
			return 1
		},
		"log": func(L *lua.LState) int {
			l.logger.Info("generator script", zap.String("script", l.name), zap.String("msg", L.CheckString(1)))
			return 0
		},
	})
	L.SetGlobal("world", mod)
}
