package latestonlychannel

import (
	"testing"
	"time"
)

func TestLatestOnlyChannelBlocksWhenEmpty(t *testing.T) {
	inputCh := make(chan int)
	outputCh := Wrap(inputCh)

	select {
	case <-outputCh:
		t.Fatalf("should have blocked")
	case <-time.After(10 * time.Millisecond):
	}

	close(inputCh)
}

func TestLatestOnlyChannelDeliversEach(t *testing.T) {
	inputCh := make(chan int)
	outputCh := Wrap(inputCh)

	inputCh <- 1
	if recv := <-outputCh; recv != 1 {
		t.Fatalf("unexpected recv number %d", recv)
	}

	inputCh <- 2
	if recv := <-outputCh; recv != 2 {
		t.Fatalf("unexpected recv number %d", recv)
	}

	close(inputCh)

	if _, ok := <-outputCh; ok {
		t.Fatalf("output channel was not closed")
	}
}

func TestLatestOnlyChannelDropsOvertaken(t *testing.T) {
	inputCh := make(chan int)
	outputCh := Wrap(inputCh)

	// no consumer while these are sent, so only the last one survives
	inputCh <- 1
	inputCh <- 2
	inputCh <- 3
	if recv := <-outputCh; recv != 3 {
		t.Fatalf("unexpected recv number %d", recv)
	}

	close(inputCh)

	if _, ok := <-outputCh; ok {
		t.Fatalf("output channel was not closed")
	}
}
