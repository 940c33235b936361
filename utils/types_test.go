package utils

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestAssertType(t *testing.T) {
	one := 1
	_, err := AssertType[string](one)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err, test.ShouldBeError, NewUnexpectedTypeError[string](one))
	test.That(t, err.Error(), test.ShouldEqual, "expected string but got int")

	_, err = AssertType[myAssertIfc](one)
	test.That(t, err, test.ShouldBeError, NewUnexpectedTypeError[myAssertIfc](one))
	test.That(t, err.Error(), test.ShouldEqual, "expected utils.myAssertIfc but got int")

	asserted, err := AssertType[myAssertIfc](myAssertInt(one))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, asserted.method1(), test.ShouldBeError, errors.New("cool 8)"))
}

type myAssertIfc interface {
	method1() error
}

type myAssertInt int

func (m myAssertInt) method1() error {
	return errors.New("cool 8)")
}

type closeCounter struct {
	closes int
}

func (c *closeCounter) Close(ctx context.Context) error {
	c.closes++
	return errors.New("closed")
}

func TestTryClose(t *testing.T) {
	test.That(t, TryClose(context.Background(), myAssertInt(1)), test.ShouldBeNil)
	c := &closeCounter{}
	test.That(t, TryClose(context.Background(), c), test.ShouldBeError, errors.New("closed"))
	test.That(t, c.closes, test.ShouldEqual, 1)
}
