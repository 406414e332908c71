// Package llm is the driver port for text-generation calls (correction,
// translation, cultural adaptation, chapterization prompts). It wraps an
// OpenRouter-compatible chat completion endpoint with rate limiting,
// circuit breaking, and bounded retry with exponential backoff, and
// reports token usage and estimated cost for every call so stage modules
// can record them on their PipelineRun.
package llm
