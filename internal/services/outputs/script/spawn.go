package script

import (
	"github.com/Shopify/go-lua"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
)

// spawn implements SpawnEntity(class, name [, outputs [, fields]]).
// outputs maps an output name to a list of keyvalue action strings, e.g.
// { OnTrigger = { "door1,Open,,0,-1" } }; fields maps keys to strings.
func (h *Host) spawn(state *lua.State) int {
	def := entity.Def{
		Class:   lua.CheckString(state, 1),
		Name:    lua.CheckString(state, 2),
		Outputs: map[string][]string{},
		Fields:  map[string]string{},
	}
	if !state.IsNoneOrNil(3) {
		lua.CheckType(state, 3, lua.TypeTable)
		state.PushNil()
		for state.Next(3) {
			name := tableKey(state)
			def.Outputs[name] = stringList(state, state.AbsIndex(-1), name)
			state.Pop(1)
		}
	}
	if !state.IsNoneOrNil(4) {
		lua.CheckType(state, 4, lua.TypeTable)
		state.PushNil()
		for state.Next(4) {
			key := tableKey(state)
			value, ok := state.ToString(-1)
			if !ok {
				lua.Errorf(state, "field %s must be a string", key)
			}
			def.Fields[key] = value
			state.Pop(1)
		}
	}

	ent, err := h.world.Spawn(def)
	if err != nil {
		lua.Errorf(state, "%s", err.Error())
	}
	state.PushInteger(int(ent))
	return 1
}

// tableKey returns the string key below the value on top of the stack.
func tableKey(state *lua.State) string {
	if state.TypeOf(-2) != lua.TypeString {
		lua.Errorf(state, "table keys must be strings")
	}
	key, _ := state.ToString(-2)
	return key
}

func stringList(state *lua.State, index int, name string) []string {
	if state.TypeOf(index) != lua.TypeTable {
		lua.Errorf(state, "output %s must be a list of action strings", name)
	}
	var out []string
	for i := 1; ; i++ {
		state.RawGetInt(index, i)
		if state.IsNil(-1) {
			state.Pop(1)
			return out
		}
		value, ok := state.ToString(-1)
		if !ok {
			lua.Errorf(state, "output %s action %d must be a string", name, i)
		}
		out = append(out, value)
		state.Pop(1)
	}
}
