package smarthq

// Key identifies one controllable/observable feature surface on a
// device. Matching is always on the full triple: sub-components of an
// appliance intentionally share partial segments (freshfood vs
// freezer differ only in ServiceDeviceType), so prefix or wildcard
// matching would gate the wrong feature.
type Key struct {
	ServiceDeviceType string
	ServiceType       string
	DomainType        string
}

// Matches reports whether the descriptor carries exactly this key.
func (k Key) Matches(s ServiceDescriptor) bool {
	return s.ServiceDeviceType == k.ServiceDeviceType &&
		s.ServiceType == k.ServiceType &&
		s.DomainType == k.DomainType
}

// Supports reports whether the service catalog contains a descriptor
// with exactly the given capability key. An empty catalog supports
// nothing.
func Supports(services []ServiceDescriptor, key Key) bool {
	for _, s := range services {
		if key.Matches(s) {
			return true
		}
	}
	return false
}

// Find returns the first descriptor matching serviceDeviceType and
// serviceType, ignoring the domain. State reads key services this way
// because a device exposes at most one state-bearing service per
// (device type, service type) pair.
func Find(services []ServiceDescriptor, serviceDeviceType, serviceType string) (ServiceDescriptor, bool) {
	for _, s := range services {
		if s.ServiceDeviceType == serviceDeviceType && s.ServiceType == serviceType {
			return s, true
		}
	}
	return ServiceDescriptor{}, false
}
