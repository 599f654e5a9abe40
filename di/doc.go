// Package di is the service container generated pipelines resolve their
// dependencies from.
//
// Services are registered on a ServiceCollection with a lifetime:
//
//	services := di.NewServiceCollection()
//	di.AddValue(services, slog.Default())
//	di.AddSingleton(services, func(sp di.ServiceProvider) (*Store, error) { return NewStore(), nil })
//	di.AddTransient(services, func(sp di.ServiceProvider) (Clock, error) { return realClock{}, nil })
//
// The collection doubles as a RegistrationSource: pipeline generation inspects
// it to decide whether a dependency can be captured once (a single singleton
// registration) or must be resolved on every call.
//
// Build turns the collection into a Container. Singletons are held by a
// samber/do injector and created lazily; scoped services live for the lifetime
// of a Scope; transient services are created on every request.
package di
