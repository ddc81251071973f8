package discovery

// Registration is one call to FakeRegistrar.Register.
type Registration struct {
	Instance string
	Port     int
}

// FakeRegistrar records registrations without touching the network.
type FakeRegistrar struct {
	// RegisterError, if set, will be returned by Register.
	RegisterError error

	Registrations []Registration
	Shutdowns     int
	// Announced is true between a successful Register and Shutdown.
	Announced bool
}

// Register records the call.
func (f *FakeRegistrar) Register(instance string, port int) error {
	if f.RegisterError != nil {
		return f.RegisterError
	}
	f.Registrations = append(f.Registrations, Registration{Instance: instance, Port: port})
	f.Announced = true
	return nil
}

// Shutdown records the call.
func (f *FakeRegistrar) Shutdown() {
	f.Shutdowns++
	f.Announced = false
}
