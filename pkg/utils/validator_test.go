package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		input     string
		expected  int64
		wantError bool
	}{
		{"123", 123, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"123.45", 0, true},
	}

	for _, tt := range tests {
		result, err := ValidateID(tt.input)
		if tt.wantError {
			assert.Error(t, err)
			assert.Equal(t, CodeInvalidParam, GetErrorCode(err))
		} else {
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		}
	}
}

func TestCamelToSnake(t *testing.T) {
	assert.Equal(t, "user_id", camelToSnake("UserID"))
	assert.Equal(t, "user_name", camelToSnake("UserName"))
	assert.Equal(t, "id", camelToSnake("ID"))
	assert.Equal(t, "name", camelToSnake("Name"))
	assert.Equal(t, "api_key", camelToSnake("APIKey"))
	assert.Equal(t, "order_2_id", camelToSnake("Order2Id"))
}

type shippingForm struct {
	Name      string          `json:"name" binding:"required,notblank"`
	Phone     string          `json:"phone" binding:"required,phone"`
	Quantity  int             `json:"quantity" binding:"positive"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"money"`
}

func TestValidateStruct(t *testing.T) {
	RegisterCustomValidators()

	t.Run("Valid", func(t *testing.T) {
		err := ValidateStruct(&shippingForm{Name: "Ada", Phone: "+442071838750", Quantity: 1})
		assert.NoError(t, err)
	})

	t.Run("BlankName", func(t *testing.T) {
		err := ValidateStruct(&shippingForm{Name: "   ", Phone: "5551234567", Quantity: 1})
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidParam, GetErrorCode(err))
		assert.Contains(t, GetErrorMessage(err), "name must not be blank")
	})

	t.Run("BadPhone", func(t *testing.T) {
		err := ValidateStruct(&shippingForm{Name: "Ada", Phone: "call-me", Quantity: 1})
		assert.Error(t, err)
		assert.Contains(t, GetErrorMessage(err), "phone must be a valid phone number")
	})

	t.Run("Price", func(t *testing.T) {
		for price, ok := range map[string]bool{"0": true, "12.5": true, "12.50": true, "-1": false, "0.001": false} {
			err := ValidateStruct(&shippingForm{Name: "Ada", Phone: "5551234567", Quantity: 1, UnitPrice: decimal.RequireFromString(price)})
			if ok {
				assert.NoError(t, err, price)
				continue
			}
			assert.Error(t, err, price)
			assert.Contains(t, GetErrorMessage(err), "unit_price must be a non-negative amount", price)
		}
	})

	t.Run("NonPositiveQuantity", func(t *testing.T) {
		err := ValidateStruct(&shippingForm{Name: "Ada", Phone: "5551234567", Quantity: 0})
		assert.Error(t, err)
		assert.Contains(t, GetErrorMessage(err), "quantity must be positive")
	})
}
