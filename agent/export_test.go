package agent

var WithClock = withClock
