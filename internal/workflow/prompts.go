package workflow

const (
	promptAnalyze = "Analyze the following metrics and extract 3 topics that would be relevant for searching " +
		"a knowledge base about Kubernetes incidents."

	promptRootCause = "You are an expert incident analyst. Based on the following context and metrics, identify " +
		"the root cause of any possible incident. There is not always an incident in the service behavior. " +
		"Provide a concise explanation of the root cause if anything."

	promptRemedy = "Based on the root cause analysis, determine the appropriate remediation action. " +
		"Consider scaling (increase/decrease replicas), restart (rolling restart), config updates, " +
		"or resource limit adjustments."

	promptVerify = "You verify incident remediation. Compare the metrics collected after the remediation with " +
		"the original symptoms and decide whether the incident is resolved."

	promptReport = "Write a concise incident report in Markdown with the sections Summary, Root Cause, " +
		"Actions Taken and Outcome. Do not invent facts that are not in the conversation."

	promptAssistant = "You are a helpful assistant tasked with performing arithmetic on a set of inputs."
)
