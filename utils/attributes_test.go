package utils

import (
	"testing"

	"go.viam.com/test"
)

type attrConfig struct {
	MaxRPM       float64 `json:"max_rpm"`
	StallCurrent float64 `json:"stall_current,omitempty"`
	CANID        int     `json:"can_id"`
}

func TestTransformAttributeMap(t *testing.T) {
	attrs := AttributeMap{"max_rpm": 5676, "can_id": "7"}
	test.That(t, attrs.Has("max_rpm"), test.ShouldBeTrue)
	test.That(t, attrs.Has("bus"), test.ShouldBeFalse)

	conf, err := TransformAttributeMap[*attrConfig](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.MaxRPM, test.ShouldEqual, 5676.0)
	test.That(t, conf.CANID, test.ShouldEqual, 7)

	byValue, err := TransformAttributeMap[attrConfig](AttributeMap{"stall_current": 40.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, byValue.StallCurrent, test.ShouldEqual, 40.5)

	_, err = TransformAttributeMap[*attrConfig](AttributeMap{"max_rmp": 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_rmp")
}
