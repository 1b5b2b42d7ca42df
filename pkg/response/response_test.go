package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorWithData(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorWithData(c, http.StatusConflict, "ALREADY_USED", "ticket already used", map[string]string{"validated_by": "Manager001"})

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "ALREADY_USED", resp.Error.Code)
	assert.Equal(t, "Manager001", resp.Data.(map[string]interface{})["validated_by"])
}

func TestInternalError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	InternalError(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "details")
}

func TestFail(t *testing.T) {
	r := Fail("TIMEOUT", "request timed out")
	assert.False(t, r.Success)
	assert.Equal(t, "TIMEOUT", r.Error.Code)
}
