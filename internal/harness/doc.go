// Package harness replaces the discovered plugs of a registry with test
// doubles for the duration of a test.
//
// A harness collects an overlay from live instances, descriptors, or YAML
// fixtures and installs it with Start or Use. Owners see every production
// descriptor removed and the overlay's added; stopping the harness reverses
// both, so cached singletons never leak between tests.
//
// # Usage
//
//	func TestCheckout(t *testing.T) {
//	    h := harness.New(registry.Default())
//	    harness.Add[fruit.Fruit](h, &fakeApple{})
//	    h.Use(t)
//
//	    apple, _, err := fruit.Socket.SingletonForID("Apple")
//	    ...
//	}
//
// Harnesses nest: an inner Start installs on top of an outer one, and each
// stop function removes only its own overlay.
//
// # Fixture Format
//
//	name: only_apple
//	description: "Replace every fruit with a single apple"
//	plugs:
//	  - implementation: example.com/fruit.Apple
//	    provides: example.com/fruit.Fruit
//	    properties:
//	      id: Apple
//
// Fixture plugs are constructed through the catalog on demand, exactly like
// discovered ones.
package harness
