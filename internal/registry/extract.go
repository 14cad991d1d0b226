package registry

// ExtractHandlers returns the module's triggerable handlers in declaration
// order, with normalized specs. Definitions without a function, without a
// command or pattern, or with an invalid spec are dropped.
func ExtractHandlers(mod Module) []Entry {
	entries, _ := extract(mod.Name(), mod)
	return entries
}

type droppedDef struct {
	name   string
	reason error
}

func extract(module string, mod Module) ([]Entry, []droppedDef) {
	defs := mod.Handlers()
	entries := make([]Entry, 0, len(defs))
	var dropped []droppedDef

	for _, def := range defs {
		if def.Func == nil {
			dropped = append(dropped, droppedDef{def.Name, errNoFunc})
			continue
		}
		if err := def.Spec.Validate(); err != nil {
			dropped = append(dropped, droppedDef{def.Name, err})
			continue
		}
		entries = append(entries, Entry{
			Module: module,
			Name:   def.Name,
			Spec:   def.Spec.Normalize(),
			Func:   def.Func,
		})
	}

	return entries, dropped
}
