package script

import (
	"context"
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// prelude defines the host table scripts use to talk to Orbitask. Every
// helper yields one command to the runner and returns the runner's answer.
const prelude = `
local yield = coroutine.yield
local note_id

host = {}

function host.id()
	if note_id == nil then
		note_id = yield("GetId")
	end
	return note_id
end

function host.log(text)
	yield({SysLog = tostring(text)})
end

function host.get(key, id)
	return yield({GetAttribute = {id = id or host.id(), key = key}})
end

function host.set(key, value, id)
	yield({SetAttribute = {id = id or host.id(), key = key, value = tostring(value)}})
end

function host.create_child(title, description, code_name, parent_id)
	return yield({CreateChild = {
		parent_id = parent_id,
		title = title,
		description = description or "",
		code_name = code_name,
	}})
end

function host.result(value)
	return yield({Result = value})
end
`

// Globals removed from the base library: scripts get no file system, module
// loading or dynamic code loading, and print would bypass the system log.
var sandboxRemoved = []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "print"}

const maxValueDepth = 64

var errNotJSON = errors.New("value is not JSON-shaped")

// LuaEngine runs scripts on gopher-lua with a restricted standard library:
// base (minus the globals above), table, string, math and coroutine.
type LuaEngine struct{}

func NewLuaEngine() *LuaEngine { return &LuaEngine{} }

// errLuaPanic wraps a Go panic raised inside gopher-lua by script input,
// e.g. yielding across pcall.
var errLuaPanic = errors.New("lua runtime panic")

func recoverLua(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", errLuaPanic, r)
	}
}

func (e *LuaEngine) Load(ctx context.Context, source string) (prog Program, err error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer func() {
		if err != nil {
			L.Close()
		}
	}()
	defer recoverLua(&err)
	L.SetContext(ctx)

	if err := openSandboxLibs(L); err != nil {
		return nil, err
	}
	if err := L.DoString(prelude); err != nil {
		return nil, fmt.Errorf("loading prelude: %w", err)
	}

	fn, err := L.LoadString(source)
	if err != nil {
		return nil, err
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, err
	}
	return &luaProgram{L: L}, nil
}

func openSandboxLibs(L *lua.LState) error {
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("opening lua library %q: %w", lib.name, err)
		}
	}
	for _, name := range sandboxRemoved {
		L.SetGlobal(name, lua.LNil)
	}
	return nil
}

type luaProgram struct {
	L       *lua.LState
	cancels []context.CancelFunc
}

func (p *luaProgram) Start(entry string) (Coroutine, error) {
	fn, ok := p.L.GetGlobal(entry).(*lua.LFunction)
	if !ok || fn.IsG {
		return nil, fmt.Errorf("entry point %q is not a global function", entry)
	}
	co, cancel := p.L.NewThread()
	if cancel != nil {
		p.cancels = append(p.cancels, cancel)
	}
	return &luaCoroutine{L: p.L, co: co, fn: fn}, nil
}

func (p *luaProgram) Close() {
	for _, cancel := range p.cancels {
		cancel()
	}
	p.L.Close()
}

type luaCoroutine struct {
	L    *lua.LState
	co   *lua.LState
	fn   *lua.LFunction
	done bool
}

func (c *luaCoroutine) Resume(value any) (step Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.done = true
			step, err = Step{}, fmt.Errorf("%w: %v", errLuaPanic, r)
		}
	}()
	if c.done {
		return Step{}, errors.New("coroutine already finished")
	}
	arg, err := toLua(c.L, value, 0)
	if err != nil {
		return Step{}, err
	}

	// fn is only used by the first Resume; later calls continue the thread.
	state, err, values := c.L.Resume(c.co, c.fn, arg)
	if state == lua.ResumeError {
		c.done = true
		return Step{}, err
	}
	if state == lua.ResumeOK {
		c.done = true
	}

	var out lua.LValue = lua.LNil
	if len(values) > 0 {
		out = values[0]
	}
	v, err := fromLua(out, 0)
	if err != nil {
		return Step{}, err
	}
	return Step{Value: v, Done: c.done}, nil
}

// fromLua converts a Lua value into its JSON shape. Tables with keys 1..n
// become []any; any other table becomes map[string]any.
func fromLua(lv lua.LValue, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: nested deeper than %d", errNotJSON, maxValueDepth)
	}
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		return tableFromLua(v, depth)
	default:
		return nil, fmt.Errorf("%w: cannot convert lua %s", errNotJSON, lv.Type())
	}
}

func tableFromLua(t *lua.LTable, depth int) (any, error) {
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n := t.MaxN(); n > 0 && n == count {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			v, err := fromLua(t.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}

	obj := make(map[string]any, count)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			convErr = fmt.Errorf("%w: table key of type %s", errNotJSON, k.Type())
			return
		}
		obj[key], convErr = fromLua(v, depth+1)
	})
	if convErr != nil {
		return nil, convErr
	}
	return obj, nil
}

// toLua converts a JSON-shaped Go value into a Lua value owned by L.
func toLua(L *lua.LState, v any, depth int) (lua.LValue, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: nested deeper than %d", errNotJSON, maxValueDepth)
	}
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case string:
		return lua.LString(x), nil
	case int:
		return lua.LNumber(x), nil
	case int64:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case []any:
		t := L.NewTable()
		for _, item := range x {
			lv, err := toLua(L, item, depth+1)
			if err != nil {
				return nil, err
			}
			t.Append(lv)
		}
		return t, nil
	case map[string]any:
		t := L.NewTable()
		for k, item := range x {
			lv, err := toLua(L, item, depth+1)
			if err != nil {
				return nil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T", errNotJSON, v)
	}
}
