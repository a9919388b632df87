package imagegen

// PlanBatches returns the size of every pipeline call needed for total
// images at nominal batch size batch. All sizes equal
// max(1, min(batch, total)) except possibly the last. A non-positive total
// plans no calls.
func PlanBatches(total, batch int) []int {
	if total <= 0 {
		return nil
	}
	per := max(1, min(batch, total))
	sizes := make([]int, 0, (total+per-1)/per)
	for made := 0; made < total; made += per {
		sizes = append(sizes, min(per, total-made))
	}
	return sizes
}
