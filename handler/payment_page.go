package handler

import (
	"html/template"
	"net/http"

	models "storefront/model"
)

// paymentPage posts the gateway form after a delay. Field values are
// escaped by html/template; nothing from the backend is rendered raw.
var paymentPage = template.Must(template.New("payment").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body>
<p>Redirecting you to the payment gateway for order #{{.OrderID}}...</p>
<form id="gateway" action="{{.Form.Action}}" method="{{.Form.Method}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<button type="submit">Proceed to payment</button>
</form>
<form action="/checkout/abandon" method="post">
<button type="submit">Cancel</button>
</form>
<script>setTimeout(function () { document.getElementById("gateway").submit(); }, {{.DelayMillis}});</script>
</body>
</html>
`))

type paymentPageData struct {
	OrderID     int64
	Form        models.RedirectForm
	Fields      []models.FormField
	DelayMillis int64
}

// PaymentPage handles GET /checkout/payment
func (h *Handler) PaymentPage(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.State()
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	if st.Step != models.StepProcessing || st.PaymentArtifact == nil || st.Order == nil {
		writeJSON(w, http.StatusConflict, errorResp{Error: "no payment pending", Redirect: "/cart"})
		return
	}

	data := paymentPageData{
		OrderID:     st.Order.ID,
		Form:        *st.PaymentArtifact,
		Fields:      st.PaymentArtifact.SortedFields(),
		DelayMillis: h.autoSubmitDelay.Milliseconds(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := paymentPage.Execute(w, data); err != nil {
		h.log.WithError(err).Error("render payment page")
	}
}
