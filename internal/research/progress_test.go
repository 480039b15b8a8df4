package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressDeliversInOrder(t *testing.T) {
	var got []Stage
	p := newProgress(func(s Step) { got = append(got, s.Name) }, 8)
	for _, st := range []Stage{StagePlanning, StageSearching, StageDone} {
		p.emit(Step{Name: st})
	}
	assert.Equal(t, 0, p.close())
	assert.Equal(t, []Stage{StagePlanning, StageSearching, StageDone}, got)
}

func TestProgressSurvivesObserverPanic(t *testing.T) {
	calls := 0
	p := newProgress(func(s Step) {
		calls++
		panic("observer bug")
	}, 4)
	p.emit(Step{Name: StagePlanning})
	p.emit(Step{Name: StageDone})
	p.close()
	assert.Equal(t, 2, calls)
}

func TestNilProgressIsNoop(t *testing.T) {
	p := newProgress(nil, 4)
	p.emit(Step{Name: StageDone})
	assert.Equal(t, 0, p.close())
}
