package spec

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InfoServiceName is the conventional name of the device information service.
// Elements inside it use their bare name as translation key.
const InfoServiceName = "device_information"

// Access flags for properties.
const (
	AccessRead   = "read"
	AccessWrite  = "write"
	AccessNotify = "notify"
)

// Service groups related properties and actions.
type Service struct {
	IID         int
	Name        string
	Description string

	spec       *Spec
	properties []*Property
	actions    []*Action
}

// NewService creates an empty service.
func NewService(iid int, name, description string) *Service {
	return &Service{IID: iid, Name: name, Description: description}
}

// AddProperty attaches a property to the service and returns it.
func (s *Service) AddProperty(p *Property) *Property {
	p.Service = s
	p.uniqueName = p.baseUniqueName()
	s.properties = append(s.properties, p)
	if s.spec != nil {
		s.spec.disambiguate()
	}
	return p
}

// AddAction attaches an action to the service and returns it.
func (s *Service) AddAction(a *Action) *Action {
	a.Service = s
	a.uniqueName = a.baseUniqueName()
	s.actions = append(s.actions, a)
	if s.spec != nil {
		s.spec.disambiguate()
	}
	return a
}

// Properties returns the service's properties in insertion order.
func (s *Service) Properties() []*Property {
	return append([]*Property(nil), s.properties...)
}

// Actions returns the service's actions in insertion order.
func (s *Service) Actions() []*Action {
	return append([]*Action(nil), s.actions...)
}

// element holds the naming logic shared by properties and actions.
type element struct {
	IID         int
	Name        string
	Description string
	Service     *Service

	uniqueName string
}

func (e *element) serviceName() string {
	if e.Service == nil {
		return ""
	}
	return e.Service.Name
}

// FullName returns the service-qualified name, e.g. "fan:speed".
func (e *element) FullName() string {
	if svc := e.serviceName(); svc != "" {
		return svc + ":" + e.Name
	}
	return e.Name
}

func (e *element) baseUniqueName() string {
	if svc := e.serviceName(); svc != "" {
		return svc + "." + e.Name
	}
	return e.Name
}

// UniqueName returns the tree-wide unique name, e.g. "fan.speed".
func (e *element) UniqueName() string {
	if e.uniqueName == "" {
		return e.baseUniqueName()
	}
	return e.uniqueName
}

// FriendlyName returns the translation key for the element.
func (e *element) FriendlyName() string {
	svc := e.serviceName()
	if svc == "" || svc == InfoServiceName || svc == e.Name {
		return e.Name
	}
	return svc + "." + e.Name
}

// FriendlyDesc returns a human readable display name.
func (e *element) FriendlyDesc() string {
	if e.Description != "" {
		return e.Description
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(e.Name))
	if svc := e.serviceName(); svc != "" && svc != e.Name && svc != InfoServiceName {
		words = append(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(svc)), words...)
	}
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}

func (e *element) siid() int {
	if e.Service == nil {
		return 0
	}
	return e.Service.IID
}

// Property is a readable and/or writable value exposed by a service.
type Property struct {
	element

	Format string
	Unit   string
	Access []string
}

// NewProperty creates a property that is not yet attached to a service.
func NewProperty(iid int, name, description string) *Property {
	return &Property{element: element{IID: iid, Name: name, Description: description}}
}

// Readable reports whether the property can be read from the device.
func (p *Property) Readable() bool { return p.hasAccess(AccessRead) }

// Writable reports whether the property can be written to the device.
func (p *Property) Writable() bool { return p.hasAccess(AccessWrite) }

func (p *Property) hasAccess(flag string) bool {
	for _, a := range p.Access {
		if a == flag {
			return true
		}
	}
	return false
}

// GenerateEntityID derives the host entity ID for this property.
func (p *Property) GenerateEntityID(owner Owner, domain string) (string, error) {
	if p.Service == nil || p.Service.spec == nil {
		return generateEntityID("", owner, p.UniqueName(), domain)
	}
	return p.Service.spec.GenerateEntityID(owner, p.UniqueName(), domain)
}

func (p *Property) String() string {
	return fmt.Sprintf("Property(%s)", p.FullName())
}

// Action is an invokable operation exposed by a service.
type Action struct {
	element

	// In lists the property IIDs taken as input parameters.
	In []int
}

// NewAction creates an action that is not yet attached to a service.
func NewAction(iid int, name, description string) *Action {
	return &Action{element: element{IID: iid, Name: name, Description: description}}
}

func (a *Action) String() string {
	return fmt.Sprintf("Action(%s)", a.FullName())
}

// Spec is the capability tree of a device model.
type Spec struct {
	Model string

	services map[int]*Service
}

// New creates an empty spec tree for a device model.
func New(model string) *Spec {
	return &Spec{Model: model, services: make(map[int]*Service)}
}

// AddService adds a service to the tree and re-derives unique names so that
// elements of equally named services stay distinguishable.
func (s *Spec) AddService(svc *Service) error {
	if _, ok := s.services[svc.IID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateService, svc.IID)
	}
	svc.spec = s
	s.services[svc.IID] = svc
	s.disambiguate()
	return nil
}

// Services returns the services ordered by IID.
func (s *Spec) Services() []*Service {
	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IID < out[j].IID })
	return out
}

// Property finds a property by its full name ("service:name").
func (s *Spec) Property(fullName string) (*Property, error) {
	for _, svc := range s.Services() {
		for _, p := range svc.properties {
			if p.FullName() == fullName {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: property %s", ErrElementNotFound, fullName)
}

// Action finds an action by its full name ("service:name").
func (s *Spec) Action(fullName string) (*Action, error) {
	for _, svc := range s.Services() {
		for _, a := range svc.actions {
			if a.FullName() == fullName {
				return a, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: action %s", ErrElementNotFound, fullName)
}

// GenerateEntityID derives a host entity ID from the device model, the
// owner's hardware address and a key such as an attribute or element name.
func (s *Spec) GenerateEntityID(owner Owner, key, domain string) (string, error) {
	return generateEntityID(s.Model, owner, key, domain)
}

func (s *Spec) disambiguate() {
	props := make(map[string][]*element)
	acts := make(map[string][]*element)
	for _, svc := range s.services {
		for _, p := range svc.properties {
			props[p.baseUniqueName()] = append(props[p.baseUniqueName()], &p.element)
		}
		for _, a := range svc.actions {
			acts[a.baseUniqueName()] = append(acts[a.baseUniqueName()], &a.element)
		}
	}
	for _, group := range []map[string][]*element{props, acts} {
		for base, elems := range group {
			for _, e := range elems {
				if len(elems) > 1 {
					e.uniqueName = fmt.Sprintf("%s-%d-%d", base, e.siid(), e.IID)
				} else {
					e.uniqueName = base
				}
			}
		}
	}
}
