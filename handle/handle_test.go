package handle

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

type testHandle uintptr

type counter map[testHandle]int

func (c counter) kind(shared bool) *Kind[testHandle] {
	k := &Kind[testHandle]{
		Name:    "test",
		Release: func(h testHandle) { c[h]-- },
	}
	if shared {
		k.Reference = func(h testHandle) { c[h]++ }
	}
	return k
}

func TestRefCounting(t *testing.T) {
	counts := counter{7: 1}
	kind := counts.kind(true)

	owner, err := New(kind, testHandle(7))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, owner.Handle(), test.ShouldEqual, testHandle(7))

	const clones = 3
	others := make([]*Ref[testHandle], 0, clones)
	for i := 0; i < clones; i++ {
		other, err := owner.Clone()
		test.That(t, err, test.ShouldBeNil)
		others = append(others, other)
	}
	test.That(t, counts[7], test.ShouldEqual, clones+1)

	test.That(t, owner.Close(), test.ShouldBeNil)
	test.That(t, owner.Close(), test.ShouldBeNil)
	test.That(t, counts[7], test.ShouldEqual, clones)
	test.That(t, owner.Handle(), test.ShouldEqual, testHandle(0))
	test.That(t, owner.Valid(), test.ShouldBeFalse)

	_, err = owner.Clone()
	test.That(t, errors.Is(err, ErrClosed), test.ShouldBeTrue)

	for i, other := range others {
		test.That(t, other.Handle(), test.ShouldEqual, testHandle(7))
		test.That(t, other.Close(), test.ShouldBeNil)
		test.That(t, counts[7], test.ShouldEqual, clones-1-i)
	}
}

func TestNullHandle(t *testing.T) {
	counts := counter{}
	ref, err := New(counts.kind(true), testHandle(0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, ref, test.ShouldBeNil)
	test.That(t, ref.Valid(), test.ShouldBeFalse)
	test.That(t, ref.Close(), test.ShouldBeNil)
	test.That(t, counts, test.ShouldBeEmpty)
}

func TestUnsharedKind(t *testing.T) {
	counts := counter{3: 1}
	ref, err := New(counts.kind(false), testHandle(3))
	test.That(t, err, test.ShouldBeNil)

	_, err = ref.Clone()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, counts[3], test.ShouldEqual, 1)

	test.That(t, ref.String(), test.ShouldEqual, "test(0x3)")
	test.That(t, ref.Close(), test.ShouldBeNil)
	test.That(t, counts[3], test.ShouldEqual, 0)
	test.That(t, ref.String(), test.ShouldEqual, "test(released)")
}
