package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersIncrementCounters(t *testing.T) {
	before := testutil.ToFloat64(cartMutations.WithLabelValues("add", "error"))
	RecordCartMutation("add", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(cartMutations.WithLabelValues("add", "error")))

	before = testutil.ToFloat64(apiRequests.WithLabelValues("cart.view", "error"))
	ObserveAPIRequest("cart.view", 0, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(apiRequests.WithLabelValues("cart.view", "error")))

	before = testutil.ToFloat64(checkoutOutcomes.WithLabelValues("cod", "completed"))
	RecordCheckout("cod", "completed")
	assert.Equal(t, before+1, testutil.ToFloat64(checkoutOutcomes.WithLabelValues("cod", "completed")))
}

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(InstrumentHandler)
	r.HandleFunc("/cart/items/{itemId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/cart/items/{itemId}", "204"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cart/items/42", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/cart/items/{itemId}", "204")))
}
