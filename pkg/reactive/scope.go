package reactive

// Scope owns effects, watchers and cleanups created while it runs. Disposing
// a scope disposes its child scopes (newest first), stops its effects and
// then runs its cleanups in reverse registration order.
//
// Scopes form a hierarchy: a scope created while another scope is running
// becomes its child.
type Scope struct {
	rt *Runtime
	id uint64

	parent   *Scope
	children []*Scope
	effects  []*Effect
	cleanups []func()

	disposed bool
}

// NewScope creates a scope. It is a child of the scope currently running,
// if any.
func (rt *Runtime) NewScope() *Scope {
	s := &Scope{
		rt:     rt,
		id:     nextID(),
		parent: rt.scope,
	}
	if s.parent != nil {
		s.parent.children = append(s.parent.children, s)
	}
	return s
}

// ID returns the unique identifier for this scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the parent scope, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Disposed reports whether Dispose has been called.
func (s *Scope) Disposed() bool {
	return s.disposed
}

// Run executes fn with s as the current scope. Running a disposed scope
// does nothing.
func (s *Scope) Run(fn func()) {
	if s.disposed {
		return
	}
	prev := s.rt.scope
	s.rt.scope = s
	defer func() { s.rt.scope = prev }()
	fn()
}

// OnCleanup registers fn to run when the scope is disposed. On a disposed
// scope fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed {
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// OnScopeDispose registers fn on the scope currently running. Outside any
// scope it returns false and fn is never called.
func (rt *Runtime) OnScopeDispose(fn func()) bool {
	if rt.scope == nil {
		return false
	}
	rt.scope.OnCleanup(fn)
	return true
}

// CurrentScope returns the scope currently running, or nil.
func (rt *Runtime) CurrentScope() *Scope {
	return rt.scope
}

func (s *Scope) addEffect(e *Effect) {
	if s.disposed {
		return
	}
	s.effects = append(s.effects, e)
}

// Dispose tears the scope down. Disposing twice is a no-op.
func (s *Scope) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	children := s.children
	s.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	for _, e := range s.effects {
		e.Stop()
	}
	s.effects = nil

	cleanups := s.cleanups
	s.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}
}

func (s *Scope) removeChild(child *Scope) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
