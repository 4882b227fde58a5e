package wizard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon-server/modules/common/model"
	"tryon-server/modules/history"
)

func TestMachine_AdvanceRequiresBothSelections(t *testing.T) {
	tests := []struct {
		name     string
		person   bool
		clothes  bool
		wantStep model.Step
		wantErr  error
	}{
		{"nothing selected", false, false, model.StepSelectClothes, ErrSelectionRequired},
		{"person only", true, false, model.StepSelectClothes, ErrSelectionRequired},
		{"clothes only", false, true, model.StepSelectClothes, ErrSelectionRequired},
		{"both selected", true, true, model.StepGenerateResult, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(newHistory(newClock()))

			// SelectPerson → SelectClothes 는 기계 수준에서 조건 없음
			step, err := m.Advance()
			require.NoError(t, err)
			require.Equal(t, model.StepSelectClothes, step)

			if tt.person {
				m.SelectPerson(presetPeople[0])
			}
			if tt.clothes {
				m.SelectClothes(presetClothes[0])
			}

			step, err = m.Advance()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStep, step)
			assert.Equal(t, tt.wantStep, m.Snapshot().Step)
		})
	}
}

func TestMachine_SelectionOrderDoesNotMatter(t *testing.T) {
	m := NewMachine(newHistory(newClock()))
	m.SelectClothes(presetClothes[1])
	m.SelectPerson(presetPeople[0])
	m.SelectClothes(presetClothes[0])

	_, err := m.Advance()
	require.NoError(t, err)
	step, err := m.Advance()
	require.NoError(t, err)
	assert.Equal(t, model.StepGenerateResult, step)
	assert.Equal(t, "c1", m.Snapshot().SelectedClothes.ID)
}

func TestMachine_AdvanceFromResultIsInvalid(t *testing.T) {
	m := NewMachine(newHistory(newClock()))
	m.SelectPerson(presetPeople[0])
	m.SelectClothes(presetClothes[0])
	m.Advance()
	m.Advance()

	step, err := m.Advance()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StepGenerateResult, step)
}

func TestMachine_AdvanceFrom(t *testing.T) {
	m := NewMachine(newHistory(newClock()))

	_, err := m.AdvanceFrom(model.StepSelectClothes)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	step, err := m.AdvanceFrom(model.StepSelectPerson)
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectClothes, step)

	// 같은 요청이 두 번 와도 두 단계를 건너뛰지 않는다
	_, err = m.AdvanceFrom(model.StepSelectPerson)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StepSelectClothes, m.Step())
}

func TestMachine_SelectInChecksStep(t *testing.T) {
	m := NewMachine(newHistory(newClock()))

	require.NoError(t, m.SelectPersonIn(model.StepSelectPerson, presetPeople[0]))
	assert.ErrorIs(t, m.SelectClothesIn(model.StepSelectClothes, presetClothes[0]), ErrStepInactive)
	assert.Nil(t, m.Snapshot().SelectedClothes)

	m.Advance()
	require.NoError(t, m.SelectClothesIn(model.StepSelectClothes, presetClothes[0]))
	assert.ErrorIs(t, m.SelectPersonIn(model.StepSelectPerson, presetPeople[1]), ErrStepInactive)
	assert.Equal(t, "p1", m.Snapshot().SelectedPerson.ID)
}

func TestMachine_Back(t *testing.T) {
	m := NewMachine(newHistory(newClock()))

	_, err := m.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	m.Advance()
	step, err := m.Back()
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectPerson, step)
}

func TestMachine_ResetKeepsSelections(t *testing.T) {
	m := NewMachine(newHistory(newClock()))
	m.SelectPerson(presetPeople[1])
	m.SelectClothes(presetClothes[0])
	m.Advance()
	m.Advance()

	_, err := m.RecordResult(context.Background(), "data:image/png;base64,AAAA")
	require.NoError(t, err)
	require.NotNil(t, m.Snapshot().ResultImageURL)

	m.Reset()

	state := m.Snapshot()
	assert.Equal(t, model.StepSelectPerson, state.Step)
	assert.Nil(t, state.ResultImageURL)
	require.NotNil(t, state.SelectedPerson)
	require.NotNil(t, state.SelectedClothes)
	assert.Equal(t, presetPeople[1], *state.SelectedPerson)
	assert.Equal(t, presetClothes[0], *state.SelectedClothes)

	// 선택이 남아 있으므로 바로 다시 결과 단계로 갈 수 있다
	m.Advance()
	step, err := m.Advance()
	require.NoError(t, err)
	assert.Equal(t, model.StepGenerateResult, step)
}

func TestMachine_RecordResult(t *testing.T) {
	ctx := context.Background()

	t.Run("appends one record built from selections", func(t *testing.T) {
		hist := newHistory(newClock())
		m := NewMachine(hist)
		m.SelectPerson(presetPeople[0])
		m.SelectClothes(presetClothes[1])

		recorded, err := m.RecordResult(ctx, "data:image/png;base64,RESULT")
		require.NoError(t, err)
		assert.True(t, recorded)

		items := hist.List()
		require.Len(t, items, 1)
		assert.Equal(t, presetPeople[0].URL, items[0].PersonImage)
		assert.Equal(t, presetClothes[1].URL, items[0].ClothesImage)
		assert.Equal(t, "data:image/png;base64,RESULT", items[0].ResultImage)
		assert.Equal(t, "data:image/png;base64,RESULT", *m.Snapshot().ResultImageURL)
	})

	t.Run("missing selection stores result without record", func(t *testing.T) {
		hist := newHistory(newClock())
		m := NewMachine(hist)
		m.SelectPerson(presetPeople[0])

		recorded, err := m.RecordResult(ctx, "data:image/png;base64,X")
		require.NoError(t, err)
		assert.False(t, recorded)
		assert.Equal(t, 0, hist.Len())
		assert.Equal(t, "data:image/png;base64,X", *m.Snapshot().ResultImageURL)
	})

	t.Run("history write failure is reported", func(t *testing.T) {
		hist := history.NewStore(&failingKV{}, "tryon_history")
		m := NewMachine(hist)
		m.SelectPerson(presetPeople[0])
		m.SelectClothes(presetClothes[0])

		recorded, err := m.RecordResult(ctx, "data:image/png;base64,X")
		assert.Error(t, err)
		assert.True(t, recorded)
		assert.Equal(t, 1, hist.Len())
	})
}

func TestMachine_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	hist := newHistory(newClock())
	m := NewMachine(hist)
	m.SelectPerson(presetPeople[0])
	m.SelectClothes(presetClothes[0])

	results := []string{"r1", "r2", "r3", "r4"}
	for _, r := range results {
		_, err := m.RecordResult(ctx, r)
		require.NoError(t, err)
	}

	items := hist.List()
	require.Len(t, items, len(results))
	for i, item := range items {
		assert.Equal(t, results[len(results)-1-i], item.ResultImage)
	}
}

func TestMachine_SnapshotIsCopy(t *testing.T) {
	m := NewMachine(newHistory(newClock()))
	m.SelectPerson(presetPeople[0])

	state := m.Snapshot()
	state.SelectedPerson.URL = "mutated"

	assert.Equal(t, presetPeople[0].URL, m.Snapshot().SelectedPerson.URL)
}
