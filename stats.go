package quizmaster

// ComputeStatistics derives the statistics of a session from its answers.
func ComputeStatistics(answers []Answer) Statistics {
	var st Statistics
	st.TotalAnswered = len(answers)
	for _, a := range answers {
		if a.IsCorrect {
			st.Correct++
		}
	}
	st.Incorrect = st.TotalAnswered - st.Correct
	if st.TotalAnswered > 0 {
		st.Percentage = float64(st.Correct) / float64(st.TotalAnswered) * 100
	}
	return st
}
