package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

const (
	messageNoEvidence   = "Xin lỗi, hiện tại hệ thống chưa có dữ liệu về món ăn này."
	messageAccessDenied = "Xin lỗi, bạn không có quyền truy cập thông tin này."
	messageSystemError  = "Hệ thống đang gặp sự cố, vui lòng thử lại sau."
	messageChitChat     = "Mình là trợ lý dinh dưỡng, mình chỉ có thể hỗ trợ các câu hỏi về món ăn và dinh dưỡng thôi nhé."
)

const chitChatSystemPrompt = `Bạn là trợ lý dinh dưỡng. Câu hỏi của người dùng không thuộc chủ đề món ăn hoặc dinh dưỡng.
Hãy từ chối lịch sự bằng tiếng Việt trong một hoặc hai câu và gợi ý người dùng hỏi về món ăn, calo hoặc thành phần dinh dưỡng.`

const answerSystemPrompt = `Bạn là trợ lý dinh dưỡng. Chỉ trả lời dựa trên ngữ cảnh được cung cấp.
Nếu ngữ cảnh không đủ thông tin, hãy nói rõ điều đó. Trả lời bằng tiếng Việt, ngắn gọn.
Nếu ngữ cảnh có [IMAGE_URL: ...] thì giữ nguyên đường dẫn ảnh trong câu trả lời.`

const scanSystemPrompt = `Bạn là trợ lý dinh dưỡng. Người dùng vừa quét hình ảnh và hệ thống nhận diện được các món ăn bên dưới.
Trả lời câu hỏi của người dùng về các món này bằng kiến thức dinh dưỡng chung, bằng tiếng Việt, ngắn gọn.`

func buildIntentPrompt(question string, history []domain.Turn) string {
	var b strings.Builder
	b.WriteString(`Bạn là bộ định tuyến cho trợ lý dinh dưỡng. Phân loại câu hỏi mới nhất của người dùng vào đúng một nhãn:
- FOLLOWUP: câu hỏi tiếp nối về món ăn vừa nhắc tới hoặc vừa quét (ví dụ "món này", "hai món này").
- NEW_TOPIC: câu hỏi về một món ăn hoặc chủ đề dinh dưỡng mới được nêu tên.
- CHITCHAT: câu hỏi không liên quan đến món ăn hoặc dinh dưỡng.
Chỉ trả về đúng một nhãn, không giải thích.
`)
	if len(history) > 0 {
		b.WriteString("\nLịch sử hội thoại:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Người dùng: %s\nTrợ lý: %s\n", turn.Question, turn.Answer)
		}
	}
	fmt.Fprintf(&b, "\nCâu hỏi mới: %s\nNhãn:", question)
	return b.String()
}

func buildExpansionPrompt(question string, n int) string {
	return fmt.Sprintf(`Bạn là trợ lý tạo truy vấn tìm kiếm về món ăn và dinh dưỡng.
Hãy viết %d cách diễn đạt khác cho câu hỏi dưới đây, giữ nguyên ý nghĩa nhưng thay đổi từ ngữ,
có thể bổ sung thuật ngữ dinh dưỡng như calo, protein, chất béo, chất xơ, đường.
Chỉ trả về một mảng JSON dạng [{"query": "..."}], không kèm giải thích.

Câu hỏi: %s`, n, question)
}

func buildCorpusContext(results []domain.RerankedResult) string {
	var b strings.Builder
	for idx, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", idx+1, r.Passage.Text)
		if link := r.Passage.Attribute(domain.AttrImageLink); link != "" {
			fmt.Fprintf(&b, "[IMAGE_URL: %s]\n", link)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func corpusMessages(question string, results []domain.RerankedResult) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: answerSystemPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Ngữ cảnh:\n%s\nCâu hỏi: %s", buildCorpusContext(results), question)},
	}
}

func scanMessages(question string, items []string, history []domain.Turn) []domain.ChatMessage {
	messages := []domain.ChatMessage{{Role: domain.RoleSystem, Content: scanSystemPrompt}}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("Món đã quét: %s\nCâu hỏi: %s", strings.Join(items, ", "), question),
	})
	return messages
}

func chitChatMessages(question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: chitChatSystemPrompt},
		{Role: domain.RoleUser, Content: question},
	}
}

func historyMessages(history []domain.Turn) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history)*2)
	for _, turn := range history {
		out = append(out,
			domain.ChatMessage{Role: domain.RoleUser, Content: turn.Question},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.Answer},
		)
	}
	return out
}
