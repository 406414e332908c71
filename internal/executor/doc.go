// Package executor drives one episode through the fixed stage graph:
// download, transcribe, correct, [gate 1], translate, adapt, [gate 2],
// chapterize, imagegen, tts, render, [gate 3], publish. It consults an
// episode's status to find its next step, runs that step's Prepare/Execute,
// and stops the moment a step fails, requests cost-limit abort, or a review
// gate has an open task awaiting a human decision.
//
// Episodes running under pipeline version 1 (the unattended variant) still
// get a ReviewTask recorded at each gate for audit purposes, but the
// executor never waits on it: every gate resolves immediately. Version 2
// episodes suspend at each gate until Active reports no open task for it.
package executor
