package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/eduquiz/quizforge/internal/quiz"
)

const rankingSheet = "Ranking"

// rankingWorkbook renders a ranking as a spreadsheet.
func rankingWorkbook(title string, entries []quiz.RankingEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", rankingSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Posição", "Aluno", "Pontos"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(rankingSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, e := range entries {
		values := []any{e.Position, e.DisplayName, e.Points}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(rankingSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Server) handleQuizRankingExport(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	entries, err := s.service.QuizRanking(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeWorkbook(w, "ranking-quiz-"+quizID, entries)
}

func (s *Server) handleGroupRankingExport(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	entries, err := s.service.GroupRanking(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeWorkbook(w, "ranking-grupo-"+groupID, entries)
}

func (s *Server) writeWorkbook(w http.ResponseWriter, name string, entries []quiz.RankingEntry) {
	f, err := rankingWorkbook(name, entries)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	if err := f.Write(w); err != nil {
		slog.Error("write workbook", "error", err)
	}
}
