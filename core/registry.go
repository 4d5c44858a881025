package core

import "pkt.systems/termdock/schema"

// registry maps session names to their records. Created once at setup;
// records are never removed, only their handle fields cycle.
type registry struct {
	sessions map[schema.SessionName]*session
	order    []schema.SessionName
}

func newRegistry(specs []SessionSpec) (*registry, error) {
	if len(specs) == 0 {
		return nil, schema.ErrNoSessions
	}
	reg := &registry{
		sessions: make(map[schema.SessionName]*session, len(specs)),
		order:    make([]schema.SessionName, 0, len(specs)),
	}
	for _, spec := range specs {
		if err := schema.ValidateSessionName(spec.Name); err != nil {
			return nil, err
		}
		if _, ok := reg.sessions[spec.Name]; ok {
			return nil, schema.ErrDuplicateSession
		}
		tag := spec.ViewTag
		if tag == "" {
			tag = schema.DefaultViewTag(spec.Name)
		}
		reg.sessions[spec.Name] = &session{
			Name:           spec.Name,
			LaunchSpec:     spec.Command,
			ViewTag:        tag,
			OnExit:         spec.OnExit,
			onBeforeLaunch: spec.OnBeforeLaunch,
		}
		reg.order = append(reg.order, spec.Name)
	}
	return reg, nil
}

func (r *registry) get(name schema.SessionName) (*session, error) {
	sess := r.sessions[name]
	if sess == nil {
		return nil, schema.ErrUnknownSession
	}
	return sess, nil
}

// forEach visits every session in registration order.
func (r *registry) forEach(fn func(*session)) {
	for _, name := range r.order {
		if sess := r.sessions[name]; sess != nil {
			fn(sess)
		}
	}
}
