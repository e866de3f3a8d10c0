package domain

// FeatureVector is the numeric representation of one TradeRecord, keyed 1:1
// by row position after the batch has been sorted by RISKDATE. Rolling and
// lag features are zero-filled for positions where the trailing window is
// not yet full; that keeps the row count stable end to end.
type FeatureVector struct {
	QuantityDifference float64 `json:"QUANTITYDIFFERENCE"`
	ImpactPrice        float64 `json:"IMPACT_PRICE"`
	ImpactQuantity     float64 `json:"IMPACT_QUANTITY"`
	DayOfWeek          float64 `json:"day_of_week"`
	Month              float64 `json:"month"`
	DeskNameEncoded    float64 `json:"deskname_encoded"`
	QuantityMean7d     float64 `json:"quantity_mean_7d"`
	QuantityMean14d    float64 `json:"quantity_mean_14d"`
	QuantityMean30d    float64 `json:"quantity_mean_30d"`
	PriceStd7d         float64 `json:"price_std_7d"`
	PriceStd14d        float64 `json:"price_std_14d"`
	PriceStd30d        float64 `json:"price_std_30d"`
	QuantityDiffLag1   float64 `json:"quantity_diff_lag1"`
}

// FeatureColumns is the fixed column order used when feature vectors are
// flattened into a matrix for model fitting and scoring.
var FeatureColumns = []string{
	"QUANTITYDIFFERENCE", "IMPACT_PRICE", "IMPACT_QUANTITY",
	"day_of_week", "month", "deskname_encoded",
	"quantity_mean_7d", "quantity_mean_14d", "quantity_mean_30d",
	"price_std_7d", "price_std_14d", "price_std_30d",
	"quantity_diff_lag1",
}

// Row flattens the vector in FeatureColumns order.
func (f FeatureVector) Row() []float64 {
	return []float64{
		f.QuantityDifference, f.ImpactPrice, f.ImpactQuantity,
		f.DayOfWeek, f.Month, f.DeskNameEncoded,
		f.QuantityMean7d, f.QuantityMean14d, f.QuantityMean30d,
		f.PriceStd7d, f.PriceStd14d, f.PriceStd30d,
		f.QuantityDiffLag1,
	}
}

// Matrix flattens a feature slice into the row-major matrix the models
// consume.
func Matrix(features []FeatureVector) [][]float64 {
	rows := make([][]float64, len(features))
	for i, f := range features {
		rows[i] = f.Row()
	}
	return rows
}
