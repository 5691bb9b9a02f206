package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	// Заголовок
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	// Секции
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	// Футер
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс агента
type TermUI struct {
	instID      string
	instruction *models.Instruction
	position    *models.Position
	stateMutex  sync.RWMutex
	logs        []string
	logsMutex   sync.RWMutex
	config      config.UIConfig
	program     *tea.Program
	width       int
	height      int
	logFile     string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig, instID string) (*TermUI, error) {
	ui := &TermUI{
		instID:  instID,
		logs:    []string{"OFTA запущен. Ожидание первого цикла..."},
		config:  cfg,
		width:   120,
		height:  40,
		logFile: "ofta.json.log",
	}

	// Загружаем логи из файла при запуске
	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	// Таймер обновления логов
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RefreshRate) * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			if err := ui.loadLogsFromFile(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
			}
			if ui.program != nil {
				ui.program.Send(refreshMsg{})
			}
		}
	}()

	return ui, nil
}

// Start запускает UI в текущей горутине (блокирующий вызов)
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// UpdateCycle обновляет последнюю инструкцию и позицию после цикла
func (ui *TermUI) UpdateCycle(ins *models.Instruction, position *models.Position) {
	ui.stateMutex.Lock()
	defer ui.stateMutex.Unlock()

	ui.instruction = ins
	ui.position = position

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile подтягивает последние записи JSON-лога
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		// Пытаемся распарсить JSON
		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

			// Добавляем дополнительные поля, если они есть
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		// Ограничиваем количество логов
		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
	}

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.stateMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.stateMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("OFTA - OKX Futures Trading Agent - " + m.ui.instID)
	decision := renderDecisionSection(m.ui.instruction)
	position := renderPositionSection(m.ui.position)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			decision,
			"\n",
			position,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

// renderDecisionSection показывает последнюю инструкцию цикла
func renderDecisionSection(ins *models.Instruction) string {
	header := sectionHeaderStyle.Render("РЕШЕНИЕ")
	content := strings.Builder{}

	if ins == nil {
		content.WriteString("  Ожидание первого цикла...\n")
	} else {
		content.WriteString(fmt.Sprintf("  %s  размер: %s",
			formatActionText(ins.Action), ins.Size))
		if ins.StopLossPrice > 0 {
			content.WriteString(fmt.Sprintf("  стоп: %.4f", ins.StopLossPrice))
		}
		content.WriteString("\n")
		content.WriteString(fmt.Sprintf("  %s  (%s)\n",
			ins.Rationale, ins.Timestamp.Format("15:04:05")))
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// renderPositionSection показывает открытую позицию
func renderPositionSection(position *models.Position) string {
	header := sectionHeaderStyle.Render("ПОЗИЦИЯ")
	content := strings.Builder{}

	if position == nil {
		content.WriteString("  Нет открытой позиции\n")
	} else {
		pnlStyle := lipgloss.NewStyle().Foreground(successColor)
		if position.UnrealizedPnL < 0 {
			pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
		}

		content.WriteString(fmt.Sprintf("  %s %.0f контрактов по %.4f  PnL: %s",
			strings.ToUpper(string(position.Side)),
			position.Size,
			position.AvgPrice,
			pnlStyle.Render(fmt.Sprintf("%.2f (%.2f%%)",
				position.UnrealizedPnL, position.UnrealizedPnLRatio*100))))
		if position.StopLossPrice > 0 {
			content.WriteString(fmt.Sprintf("  стоп: %.4f", position.StopLossPrice))
		}
		content.WriteString("\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 12
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		// Выделение по уровню логирования
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// formatActionText раскрашивает действие инструкции
func formatActionText(action models.Action) string {
	var style lipgloss.Style

	switch action {
	case models.ActionBuy:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.ActionSell:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case models.ActionClose:
		style = lipgloss.NewStyle().Foreground(errorColor)
	case models.ActionUpdateSLTP:
		style = lipgloss.NewStyle().Foreground(primaryColor)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(strings.ToUpper(string(action)))
}
