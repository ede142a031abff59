// Package bridge forwards messages between two buses according to a
// pattern-based rule.
//
// A Bridge subscribes to a set of patterns on a source bus and republishes
// every matching message on a target bus, optionally rewriting a topic
// prefix on the way through. Both ends speak canonical topics; each bus's
// own transport handles translation to its wire syntax.
//
// # Usage
//
//	b := bridge.New(bridge.Options{
//	    Source: plantBus,
//	    Target: cloudBus,
//	    Rule: bridge.Rule{
//	        Name:     "plant-to-cloud",
//	        Patterns: []string{"sensors/#"},
//	        Rewrite:  bridge.Rewrite{From: "sensors", To: "site-7/sensors"},
//	    },
//	})
//	if err := b.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Stop(ctx)
//
// # Loops
//
// A pair of bridges forwarding in opposite directions between the same two
// buses will cycle messages unless the rewrite moves topics out of the
// forwarded pattern space. Configuration review is the guard; the bridge
// itself does not track message provenance.
package bridge
