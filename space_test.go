package qpe

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQuantumSpace(t *testing.T) {
	Convey("Given a quantum space", t, func() {
		qs := NewQuantumSpace(time.Minute)

		const key = "test-group"

		Reset(func() {
			qs.Close()
		})

		Convey("When storing and retrieving values", func() {
			qs.Store("test-key", "test-value", nil, time.Minute)

			Convey("Value should be retrievable", func() {
				value := await(qs.Await("test-key"))
				So(value.Value, ShouldEqual, "test-value")
				So(value.Error, ShouldBeNil)
				So(value.TTL, ShouldEqual, time.Minute)
			})
		})

		Convey("When awaiting a value before it is stored", func() {
			first := qs.Await("late-key")
			second := qs.Await("late-key")

			qs.Store("late-key", nil, errors.New("late failure"), 0)

			Convey("Every waiter should be released with the error", func() {
				for _, ch := range []chan QuantumValue{first, second} {
					value := await(ch)
					So(value.Error, ShouldNotBeNil)
					So(value.Error.Error(), ShouldEqual, "late failure")
				}
			})
		})

		Convey("When using broadcast groups", func() {
			group := qs.CreateBroadcastGroup(key, time.Minute)
			sub1 := qs.Subscribe(key, 1)
			sub2 := qs.Subscribe(key, 1)

			Convey("All subscribers should receive messages", func() {
				group.Send(QuantumValue{Value: "broadcast message", CreatedAt: time.Now()})

				for _, ch := range []chan QuantumValue{sub1, sub2} {
					So(await(ch).Value, ShouldEqual, "broadcast message")
				}
			})

			Convey("A full subscriber should not block the sender", func() {
				group.Send(QuantumValue{Value: 1})
				group.Send(QuantumValue{Value: 2})

				So(await(sub1).Value, ShouldEqual, 1)
				So(len(sub1), ShouldEqual, 0)
			})

			Convey("Creating the group again should return the same group", func() {
				So(qs.CreateBroadcastGroup(key, time.Second), ShouldPointTo, group)
			})

			Convey("Closing the space should close subscribers", func() {
				qs.Close()

				_, open := <-sub2
				So(open, ShouldBeFalse)

				Convey("and late subscribers get a closed channel", func() {
					_, open := <-group.subscribe(1)
					So(open, ShouldBeFalse)
				})
			})
		})

		Convey("Subscribing to an unknown group should yield a closed channel", func() {
			_, open := <-qs.Subscribe("missing", 1)
			So(open, ShouldBeFalse)
		})
	})
}

func TestQuantumSpaceCleanup(t *testing.T) {
	Convey("Given a quantum space with a short cleanup interval", t, func() {
		qs := NewQuantumSpace(5 * time.Millisecond)

		Reset(func() {
			qs.Close()
		})

		qs.Store("short", "gone soon", nil, time.Millisecond)
		qs.Store("forever", "kept", nil, 0)
		group := qs.CreateBroadcastGroup("idle", time.Millisecond)
		sub := group.subscribe(1)

		time.Sleep(50 * time.Millisecond)

		Convey("Expired values and idle groups should be removed", func() {
			qs.mu.Lock()
			_, short := qs.values["short"]
			_, forever := qs.values["forever"]
			_, idle := qs.groups["idle"]
			qs.mu.Unlock()

			So(short, ShouldBeFalse)
			So(forever, ShouldBeTrue)
			So(idle, ShouldBeFalse)

			_, open := <-sub
			So(open, ShouldBeFalse)
		})
	})
}
