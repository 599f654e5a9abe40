package di_test

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/blueprint/di"
)

type counter struct{ n int }

type Greeter interface{ Greet() string }

type english struct{}

func (english) Greet() string { return "hello" }

type french struct{}

func (french) Greet() string { return "bonjour" }

type closer struct {
	name   string
	closed *[]string
}

func (c *closer) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

type shutdowner struct{ down atomic.Bool }

func (s *shutdowner) Shutdown() error {
	s.down.Store(true)
	return nil
}

type Repo[T any] struct{ Name string }

func TestLifetimes(t *testing.T) {
	services := di.NewServiceCollection()
	var made atomic.Int32
	newCounter := func(di.ServiceProvider) (*counter, error) {
		made.Add(1)
		return &counter{n: int(made.Load())}, nil
	}
	require.NoError(t, di.AddSingleton(services, newCounter))
	require.NoError(t, di.AddScoped(services, func(di.ServiceProvider) (*closer, error) {
		return &closer{}, nil
	}))
	require.NoError(t, di.AddTransient(services, func(di.ServiceProvider) ([]byte, error) {
		return make([]byte, 1), nil
	}))
	c := services.Build()

	a := di.MustGet[*counter](c)
	b := di.MustGet[*counter](c.CreateScope())
	assert.Same(t, a, b, "singletons are shared across scopes")
	assert.EqualValues(t, 1, made.Load())

	s1, s2 := c.CreateScope(), c.CreateScope()
	x1 := di.MustGet[*closer](s1)
	assert.Same(t, x1, di.MustGet[*closer](s1), "scoped services are shared within a scope")
	assert.NotSame(t, x1, di.MustGet[*closer](s2))

	t1 := di.MustGet[[]byte](c)
	t2 := di.MustGet[[]byte](c)
	assert.NotSame(t, &t1[0], &t2[0], "transient services are created per request")
}

func TestConcurrentSingleton(t *testing.T) {
	services := di.NewServiceCollection()
	var made atomic.Int32
	require.NoError(t, di.AddSingleton(services, func(di.ServiceProvider) (*counter, error) {
		made.Add(1)
		return &counter{}, nil
	}))
	c := services.Build()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := di.Get[*counter](c.CreateScope())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, made.Load())
}

func TestMultipleRegistrations(t *testing.T) {
	services := di.NewServiceCollection()
	require.NoError(t, di.AddValue[Greeter](services, english{}))
	require.NoError(t, di.AddValue[Greeter](services, french{}))
	c := services.Build()

	g, err := di.Get[Greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", g.Greet(), "the last registration wins")

	all, err := di.GetAll[Greeter](c)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "hello", all[0].Greet())

	slice, err := di.Get[[]Greeter](c)
	require.NoError(t, err)
	assert.Len(t, slice, 2)

	none, err := di.Get[[]*counter](c)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	regs := services.Registrations(reflect.TypeFor[Greeter]())
	require.Len(t, regs, 2)
	assert.True(t, regs[0].IsSingleton())
	assert.Equal(t, 2, services.Len())
}

func TestOpenGeneric(t *testing.T) {
	services := di.NewServiceCollection()
	require.NoError(t, services.AddOpenGeneric(reflect.TypeFor[*Repo[struct{}]](), di.Scoped,
		func(sp di.ServiceProvider, typ reflect.Type) (any, error) {
			return reflect.New(typ.Elem()).Interface(), nil
		}))
	require.NoError(t, di.AddValue(services, &Repo[string]{Name: "exact"}))
	c := services.Build()

	ints, err := di.Get[*Repo[int]](c)
	require.NoError(t, err)
	assert.NotNil(t, ints)

	regs := c.Registrations(reflect.TypeFor[*Repo[int]]())
	require.Len(t, regs, 1)
	assert.True(t, regs[0].Generic)
	assert.Equal(t, di.Scoped, regs[0].Lifetime)

	strs := di.MustGet[*Repo[string]](c)
	assert.Equal(t, "exact", strs.Name, "exact registrations take precedence")
	assert.False(t, c.Registrations(reflect.TypeFor[*Repo[string]]())[0].Generic)

	assert.Empty(t, c.Registrations(reflect.TypeFor[Repo[int]]()), "pointer and value families differ")
}

func TestErrors(t *testing.T) {
	services := di.NewServiceCollection()
	boom := errors.New("boom")
	require.NoError(t, di.AddSingleton(services, func(di.ServiceProvider) (*counter, error) {
		return nil, boom
	}))
	require.NoError(t, services.Add(reflect.TypeFor[Greeter](), di.Transient, func(di.ServiceProvider) (any, error) {
		return 42, nil
	}))
	assert.ErrorIs(t, services.Add(reflect.TypeFor[string](), di.Singleton, nil), di.ErrNilFactory)
	c := services.Build()

	_, err := di.Get[*counter](c)
	var re *di.ResolveError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "di: resolve *di_test.counter: boom", err.Error())

	_, err = di.Get[Greeter](c)
	var wt *di.WrongTypeError
	require.ErrorAs(t, err, &wt)
	assert.Equal(t, reflect.TypeFor[int](), wt.GotType)

	_, err = di.Get[english](c)
	var missing *di.MissingServiceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "di: no service registered for di_test.english", err.Error())

	assert.Panics(t, func() { di.MustGet[english](c) })
}

func TestBuildSnapshots(t *testing.T) {
	services := di.NewServiceCollection()
	c := services.Build()
	require.NoError(t, di.AddValue(services, english{}))

	_, err := di.Get[english](c)
	var missing *di.MissingServiceError
	assert.ErrorAs(t, err, &missing)
}

func TestClose(t *testing.T) {
	services := di.NewServiceCollection()
	var closed []string
	require.NoError(t, di.AddScoped(services, func(di.ServiceProvider) (*closer, error) {
		return &closer{name: "first", closed: &closed}, nil
	}))
	require.NoError(t, services.Add(reflect.TypeFor[resource](), di.Scoped, func(sp di.ServiceProvider) (any, error) {
		if _, err := di.Get[*closer](sp); err != nil {
			return nil, err
		}
		return &closer{name: "second", closed: &closed}, nil
	}))
	down := &shutdowner{}
	require.NoError(t, di.AddValue(services, down))
	c := services.Build()

	scope := c.CreateScope()
	_, err := di.Get[resource](scope)
	require.NoError(t, err)
	require.NoError(t, scope.Close())
	assert.Equal(t, []string{"second", "first"}, closed, "scoped services close newest first")

	di.MustGet[*shutdowner](c)
	require.NoError(t, c.Close())
	assert.True(t, down.down.Load())
	require.NoError(t, c.Close())

	_, err = di.Get[*closer](c.CreateScope())
	assert.ErrorIs(t, err, di.ErrClosed)
}

type resource interface{ Close() error }

func TestLifetimeString(t *testing.T) {
	assert.Equal(t, "singleton", di.Singleton.String())
	assert.Equal(t, "scoped", di.Scoped.String())
	assert.Equal(t, "transient", di.Transient.String())
	assert.Equal(t, "lifetime(7)", di.Lifetime(7).String())
}
