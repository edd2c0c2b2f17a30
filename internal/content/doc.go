// Package content defines the types shared by the article generation workflow:
// topics, brand and campaign context, generated articles, workflow executions,
// and the ports through which the pipeline reaches storage and providers.
package content
